package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSyntheticTimeDefaultsToEpoch(t *testing.T) {
	clk := NewSyntheticTime(time.Time{})
	assert.Equal(t, Epoch, clk.Now())
}

func TestSyntheticTimeAdvance(t *testing.T) {
	clk := NewSyntheticTime(time.Time{})

	got := clk.Advance(10 * time.Millisecond)
	assert.Equal(t, Epoch.Add(10*time.Millisecond), got)
	assert.Equal(t, got, clk.Now())

	clk.Advance(5 * time.Millisecond)
	assert.Equal(t, Epoch.Add(15*time.Millisecond), clk.Now())
}

func TestSyntheticTimeSet(t *testing.T) {
	clk := NewSyntheticTime(time.Time{})
	target := Epoch.Add(time.Hour)
	clk.Set(target)
	assert.Equal(t, target, clk.Now())
}
