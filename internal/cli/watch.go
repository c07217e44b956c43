package cli

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"github.com/spf13/cobra"

	"github.com/roach88/ffmix/internal/backend"
	"github.com/roach88/ffmix/internal/backend/sim"
	"github.com/roach88/ffmix/internal/core"
	"github.com/roach88/ffmix/internal/device"
	"github.com/roach88/ffmix/internal/effect"
	"github.com/roach88/ffmix/internal/harness"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Audio bool
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <scenario.yaml>",
		Short: "Run a scenario with a live terminal view",
		Long: `Run a scenario in real time and render the device output live.

The scenario's tick steps advance wall-clock time instead of synthetic
time; the terminal shows the combined force vector, the rumble channel
magnitudes and the recent uncombinable transitions as they happen.

With --audio a sine tone tracks the strong rumble magnitude, so rumble
scenarios are audible without hardware.

Press q or Escape to quit.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Audio, "audio", false, "play a tone tracking the strong rumble magnitude")

	return cmd
}

func runWatch(opts *WatchOptions, scenarioFile string) error {
	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	simBackend := sim.New(scenario.Device.Slots)
	mon := newMonitor()

	deviceOpts := []core.Option{core.WithManualTicks()}
	if scenario.Device.ReuploadOnUpdate != nil {
		deviceOpts = append(deviceOpts, core.WithReuploadOnUpdate(*scenario.Device.ReuploadOnUpdate))
	}

	dev, err := core.Register(scenario.Name, nil,
		backend.Tee(simBackend.Control, mon.Control),
		scenario.Device.UpdateRate.Std(), deviceOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register device", err)
	}

	loopDone := make(chan error, 1)
	go func() { loopDone <- dev.Run(context.Background()) }()

	if opts.Audio {
		closeAudio, err := startAudio(mon)
		if err != nil {
			// The view is still useful without sound.
			mon.note(fmt.Sprintf("audio unavailable: %v", err))
		} else {
			defer closeAudio()
		}
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open terminal", err)
	}
	if err := screen.Init(); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize terminal", err)
	}
	defer screen.Fini()

	// Steps run on their own goroutine so the view stays responsive
	// during tick sleeps.
	stepsDone := make(chan struct{})
	go func() {
		defer close(stepsDone)
		refs := make(map[string]int)
		for i, step := range scenario.Steps {
			if err := executeLiveStep(dev, simBackend, refs, step); err != nil {
				mon.note(fmt.Sprintf("steps[%d] (%s): %v", i, step.Op, err))
				return
			}
		}
	}()

	watchLoop(screen, mon, scenario.Name, stepsDone)

	dev.Close()
	if err := <-loopDone; err != nil {
		return WrapExitError(ExitFailure, "device loop failed", err)
	}
	return nil
}

// executeLiveStep runs one scenario step against a live device,
// translating tick steps into wall-clock sleeps.
func executeLiveStep(dev *core.Device, simBackend *sim.Backend, refs map[string]int, step harness.Step) error {
	toEffect := func() (effect.Effect, error) {
		if step.Effect == nil {
			return effect.Effect{}, fmt.Errorf("missing effect payload")
		}
		return step.Effect.ToEffect()
	}

	switch step.Op {
	case harness.OpSubmit:
		e, err := toEffect()
		if err != nil {
			return err
		}
		id, err := dev.Submit(e)
		if err != nil {
			return err
		}
		refs[step.Ref] = id
		return nil

	case harness.OpUpdate:
		e, err := toEffect()
		if err != nil {
			return err
		}
		return dev.Update(refs[step.Ref], e)

	case harness.OpStart:
		repeat := step.Repeat
		if repeat == 0 {
			repeat = 1
		}
		return dev.Start(refs[step.Ref], repeat)

	case harness.OpStop:
		return dev.Stop(refs[step.Ref])

	case harness.OpErase:
		return dev.Erase(refs[step.Ref])

	case harness.OpTick:
		ticks := step.Ticks
		if ticks == 0 {
			ticks = 1
		}
		advance := step.Advance.Std()
		if advance == 0 {
			advance = dev.UpdateRate()
		}
		for i := 0; i < ticks; i++ {
			time.Sleep(advance)
			if err := dev.Step(time.Now()); err != nil {
				return err
			}
		}
		return nil

	case harness.OpRejectUpload:
		simBackend.RejectUpload(refs[step.Ref], nil)
		return nil

	case harness.OpAcceptUpload:
		simBackend.AcceptUpload(refs[step.Ref])
		return nil

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

// watchLoop renders until the user quits.
func watchLoop(screen tcell.Screen, mon *monitor, title string, stepsDone <-chan struct{}) {
	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	finished := false
	for {
		select {
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' {
					return
				}
			case *tcell.EventResize:
				screen.Sync()
			}

		case <-stepsDone:
			finished = true
			stepsDone = nil

		case <-ticker.C:
			drawMonitor(screen, mon, title, finished)
		}
	}
}

// drawMonitor paints one frame of the live view.
func drawMonitor(screen tcell.Screen, mon *monitor, title string, finished bool) {
	screen.Clear()

	style := tcell.StyleDefault
	header := style.Bold(true)

	drawText(screen, 0, 0, header, fmt.Sprintf("ffmix watch - %s", title))
	drawText(screen, 0, 1, style, "q to quit")

	snap := mon.snapshot()

	drawText(screen, 0, 3, header, "combined")
	drawSignedBar(screen, 2, 4, style, "x", snap.force.X, effect.MaxLevel)
	drawSignedBar(screen, 2, 5, style, "y", snap.force.Y, effect.MaxLevel)
	if !snap.combined {
		drawText(screen, 2, 6, style, "(stopped)")
	}

	drawText(screen, 0, 8, header, "rumble")
	drawMagnitudeBar(screen, 2, 9, style, "strong", snap.rumble.Strong, effect.MaxMagnitude)
	drawMagnitudeBar(screen, 2, 10, style, "weak", snap.rumble.Weak, effect.MaxMagnitude)
	if !snap.rumbleOn {
		drawText(screen, 2, 11, style, "(stopped)")
	}

	drawText(screen, 0, 13, header, "recent")
	for i, line := range snap.events {
		drawText(screen, 2, 14+i, style, line)
	}

	if finished {
		drawText(screen, 0, 14+len(snap.events)+1, header, "scenario finished - q to quit")
	}

	screen.Show()
}

const barWidth = 32

// drawSignedBar renders a level bar growing from a center origin.
func drawSignedBar(screen tcell.Screen, x, y int, style tcell.Style, label string, value int32, max int32) {
	half := barWidth / 2
	fill := int(math.Round(float64(value) / float64(max) * float64(half)))
	if fill > half {
		fill = half
	}
	if fill < -half {
		fill = -half
	}

	bar := make([]rune, barWidth+1)
	for i := range bar {
		bar[i] = ' '
	}
	bar[half] = '|'
	for i := 1; i <= fill; i++ {
		bar[half+i] = '#'
	}
	for i := -1; i >= fill; i-- {
		bar[half+i] = '#'
	}

	drawText(screen, x, y, style, fmt.Sprintf("%-6s [%s] %6d", label, string(bar), value))
}

// drawMagnitudeBar renders an unsigned magnitude bar.
func drawMagnitudeBar(screen tcell.Screen, x, y int, style tcell.Style, label string, value uint32, max uint32) {
	fill := int(math.Round(float64(value) / float64(max) * float64(barWidth)))
	if fill > barWidth {
		fill = barWidth
	}

	bar := make([]rune, barWidth)
	for i := range bar {
		if i < fill {
			bar[i] = '#'
		} else {
			bar[i] = ' '
		}
	}

	drawText(screen, x, y, style, fmt.Sprintf("%-6s [%s] %6d", label, string(bar), value))
}

func drawText(screen tcell.Screen, x, y int, style tcell.Style, text string) {
	for i, r := range []rune(text) {
		screen.SetContent(x+i, y, r, nil, style)
	}
}

// monitorSnapshot is one coherent view of the monitor state.
type monitorSnapshot struct {
	force    device.SimpleForce
	rumble   device.RumbleForce
	combined bool
	rumbleOn bool
	events   []string
}

// monitor is a ControlFunc sink retaining the latest channel state for
// rendering.
type monitor struct {
	mu sync.Mutex
	monitorSnapshot
}

const monitorEventLimit = 6

func newMonitor() *monitor {
	return &monitor{}
}

// Control records the command's effect on the display state. It never
// fails; upload decisions belong to the primary back-end.
func (m *monitor) Control(_ any, cmd *device.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch cmd.Kind {
	case device.StartCombined:
		m.force = *cmd.Simple
		m.combined = true
	case device.StopCombined:
		m.force = device.SimpleForce{}
		m.combined = false
	case device.StartRumble:
		m.rumble = *cmd.Rumble
		m.rumbleOn = true
	case device.StopRumble:
		m.rumble = device.RumbleForce{}
		m.rumbleOn = false
	default:
		m.push(fmt.Sprintf("%s effect %d", cmd.Kind, cmd.Uncomb.ID))
	}
	return nil
}

// note appends a free-form line to the recent-events pane.
func (m *monitor) note(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.push(line)
}

func (m *monitor) push(line string) {
	m.events = append(m.events, line)
	if len(m.events) > monitorEventLimit {
		m.events = m.events[len(m.events)-monitorEventLimit:]
	}
}

func (m *monitor) snapshot() monitorSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.monitorSnapshot
	snap.events = append([]string(nil), m.events...)
	return snap
}

// strongLevel returns the strong rumble magnitude normalized to [0, 1]
// for the audio preview.
func (m *monitor) strongLevel() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.rumbleOn {
		return 0
	}
	level := float64(m.rumble.Strong) / float64(effect.MaxMagnitude)
	if level > 1 {
		level = 1
	}
	return level
}

// startAudio plays a sine tone whose amplitude tracks the strong rumble
// magnitude. Returns a shutdown func.
func startAudio(mon *monitor) (func(), error) {
	sampleRate := beep.SampleRate(48000)
	if err := speaker.Init(sampleRate, sampleRate.N(100*time.Millisecond)); err != nil {
		return nil, err
	}

	speaker.Play(&rumbleTone{
		rate:  sampleRate,
		freq:  160, // roughly a strong motor's resonant band
		level: mon.strongLevel,
	})
	return func() { speaker.Close() }, nil
}

// rumbleTone is an endless sine streamer with an externally controlled
// amplitude.
type rumbleTone struct {
	rate  beep.SampleRate
	freq  float64
	phase float64
	level func() float64
}

func (t *rumbleTone) Stream(samples [][2]float64) (int, bool) {
	amp := t.level()
	for i := range samples {
		v := amp * math.Sin(2*math.Pi*t.phase)
		samples[i][0] = v
		samples[i][1] = v

		t.phase += t.freq / float64(t.rate)
		t.phase -= math.Floor(t.phase)
	}
	return len(samples), true
}

func (t *rumbleTone) Err() error { return nil }
