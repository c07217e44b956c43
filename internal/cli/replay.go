package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ffmix/internal/backend/procon"
	"github.com/roach88/ffmix/internal/device"
	"github.com/roach88/ffmix/internal/trace"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string
	Procon   bool
}

// ReplayResult holds the replay verification result.
type ReplayResult struct {
	RunID      string   `json:"run_id"`
	Commands   int      `json:"commands"`
	Violations []string `json:"violations,omitempty"`
	Clean      bool     `json:"clean"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Verify a recorded run against the command protocol",
		Long: `Re-read a recorded run and verify it against the command protocol.

Checks that the trace could have been produced by a well-behaved
session: sequence numbers strictly increase, uploads precede starts,
playing effects are stopped before they are erased, channel stops are
never redundant, and no infallible command carries a failure.

With --procon the run's rumble commands are additionally re-emitted in
real time to a Switch Pro Controller over USB, spaced by the recorded
tick timing.

Exit codes:
  0 - Trace is protocol-clean
  1 - Protocol violations found
  2 - Command error (database or run not found, etc.)

Examples:
  ffmix replay --db ./traces.db --run 0190a5e2-...
  ffmix replay --db ./traces.db --run 0190a5e2-... --procon`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run to replay (required)")
	_ = cmd.MarkFlagRequired("run")
	cmd.Flags().BoolVar(&opts.Procon, "procon", false, "re-emit rumble commands to a Switch Pro Controller")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := trace.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open trace database", err)
	}
	defer st.Close()

	run, err := st.GetRun(ctx, opts.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.RunID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	records, err := st.ReadRun(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read commands", err)
	}

	result := ReplayResult{
		RunID:      run.ID,
		Commands:   len(records),
		Violations: lintProtocol(records),
	}
	result.Clean = len(result.Violations) == 0

	if opts.Procon {
		if err := emitToProcon(run, records, cmd); err != nil {
			return WrapExitError(ExitCommandError, "failed to drive controller", err)
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result)
}

// effectState tracks one uncombinable effect's hardware residency
// through the recorded command stream.
type effectState struct {
	resident bool
	playing  bool
}

// lintProtocol checks a recorded command stream against the ordering
// rules the decision loop guarantees.
func lintProtocol(records []trace.Record) []string {
	var violations []string
	report := func(rec trace.Record, format string, args ...interface{}) {
		violations = append(violations,
			fmt.Sprintf("seq %d (%s): %s", rec.Seq, rec.Kind, fmt.Sprintf(format, args...)))
	}

	effects := make(map[int]*effectState)
	stateOf := func(id int) *effectState {
		if effects[id] == nil {
			effects[id] = &effectState{}
		}
		return effects[id]
	}

	var (
		lastSeq        int64
		lastTick       int64
		combinedActive bool
		rumbleActive   bool
	)

	for _, rec := range records {
		if rec.Seq <= lastSeq {
			report(rec, "sequence number did not increase (previous %d)", lastSeq)
		}
		lastSeq = rec.Seq
		if rec.Tick < lastTick {
			report(rec, "tick went backwards (previous %d)", lastTick)
		}
		lastTick = rec.Tick

		if rec.Err != "" && !rec.Kind.CanFail() {
			report(rec, "infallible command carries failure %q", rec.Err)
		}

		switch rec.Kind {
		case device.UploadUncombinable:
			s := stateOf(rec.EffectID)
			if rec.Err != "" {
				break // rejected upload leaves the slot untouched
			}
			if s.resident {
				report(rec, "effect %d uploaded while already resident", rec.EffectID)
			}
			s.resident = true
			s.playing = false

		case device.StartUncombinable:
			s := stateOf(rec.EffectID)
			if !s.resident {
				report(rec, "effect %d started without an upload", rec.EffectID)
			}
			s.playing = true

		case device.StopUncombinable:
			s := stateOf(rec.EffectID)
			if !s.resident {
				report(rec, "effect %d stopped without an upload", rec.EffectID)
			}
			s.playing = false

		case device.EraseUncombinable:
			s := stateOf(rec.EffectID)
			if !s.resident {
				report(rec, "effect %d erased while not resident", rec.EffectID)
			}
			if s.playing {
				report(rec, "effect %d erased while playing", rec.EffectID)
			}
			s.resident = false

		case device.StartCombined:
			combinedActive = true
		case device.StopCombined:
			if !combinedActive {
				report(rec, "redundant stop of an inactive combined channel")
			}
			combinedActive = false

		case device.StartRumble:
			rumbleActive = true
		case device.StopRumble:
			if !rumbleActive {
				report(rec, "redundant stop of an inactive rumble channel")
			}
			rumbleActive = false
		}
	}

	return violations
}

// emitToProcon re-emits a run's rumble commands to a Pro Controller,
// pacing ticks by the recorded update rate.
func emitToProcon(run trace.Run, records []trace.Record, cmd *cobra.Command) error {
	pro, err := procon.Open()
	if err != nil {
		return err
	}
	defer pro.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Replaying rumble to %s...\n", pro)

	lastTick := int64(-1)
	for _, rec := range records {
		if lastTick >= 0 && rec.Tick > lastTick {
			time.Sleep(time.Duration(rec.Tick-lastTick) * run.UpdateRate)
		}
		lastTick = rec.Tick

		switch rec.Kind {
		case device.StartRumble:
			if rec.Rumble == nil {
				continue
			}
			if err := pro.SetRumble(rec.Rumble.Strong, rec.Rumble.Weak); err != nil {
				return err
			}
		case device.StopRumble:
			if err := pro.SetRumble(0, 0); err != nil {
				return err
			}
		}
	}

	// Leave the motors idle no matter how the run ended.
	return pro.SetRumble(0, 0)
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if !result.Clean {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_PROTOCOL",
			Message: fmt.Sprintf("%d protocol violation(s)", len(result.Violations)),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.Clean {
		return NewExitError(ExitFailure, "protocol verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay of %s: %d command(s)\n", truncateID(result.RunID), result.Commands)

	if result.Clean {
		fmt.Fprintln(w, "✓ Trace is protocol-clean")
		return nil
	}

	fmt.Fprintf(w, "✗ %d protocol violation(s):\n", len(result.Violations))
	for _, v := range result.Violations {
		fmt.Fprintf(w, "  %s\n", v)
	}
	return NewExitError(ExitFailure, "protocol verification failed")
}
