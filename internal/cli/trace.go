package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ffmix/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// RunInfo is the display form of a recorded run.
type RunInfo struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Device     string `json:"device"`
	UpdateRate string `json:"update_rate"`
	StartedAt  string `json:"started_at"`
}

// CommandInfo is the display form of one recorded command.
type CommandInfo struct {
	Tick     int64   `json:"tick"`
	Seq      int64   `json:"seq"`
	Command  string  `json:"command"`
	EffectID int     `json:"effect_id,omitempty"`
	X        *int32  `json:"x,omitempty"`
	Y        *int32  `json:"y,omitempty"`
	Strong   *uint32 `json:"strong,omitempty"`
	Weak     *uint32 `json:"weak,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// RunListResult holds the run listing output.
type RunListResult struct {
	Runs  []RunInfo `json:"runs"`
	Total int       `json:"total"`
}

// RunTraceResult holds the per-run trace output.
type RunTraceResult struct {
	Run      RunInfo       `json:"run"`
	Commands []CommandInfo `json:"commands"`
	Stats    TraceStats    `json:"stats"`
}

// TraceStats holds summary statistics for a recorded run.
type TraceStats struct {
	TotalCommands int   `json:"total_commands"`
	Rejections    int   `json:"rejections"`
	Ticks         int64 `json:"ticks"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded command traces",
		Long: `Inspect command traces recorded by 'ffmix run --db'.

Without --run, lists all recorded runs newest first. With --run, shows
the full command timeline of that run: every dispatched command with
its tick, sequence number and payload.

Examples:
  ffmix trace --db ./traces.db
  ffmix trace --db ./traces.db --run 0190a5e2-...
  ffmix trace --db ./traces.db --run 0190a5e2-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTraceCmd(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show the command timeline of this run")

	return cmd
}

func runTraceCmd(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := trace.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open trace database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		return listRuns(ctx, st, opts, cmd)
	}
	return showRun(ctx, st, opts, cmd)
}

func listRuns(ctx context.Context, st *trace.Store, opts *TraceOptions, cmd *cobra.Command) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	result := RunListResult{Runs: make([]RunInfo, 0, len(runs)), Total: len(runs)}
	for _, run := range runs {
		result.Runs = append(result.Runs, runInfo(run))
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(w, "%d recorded run(s):\n\n", len(runs))
	for _, run := range result.Runs {
		fmt.Fprintf(w, "  %s  %-24s  device=%s rate=%s started=%s\n",
			truncateID(run.ID), run.Label, run.Device, run.UpdateRate, run.StartedAt)
	}
	return nil
}

func showRun(ctx context.Context, st *trace.Store, opts *TraceOptions, cmd *cobra.Command) error {
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

	result := RunTraceResult{
		Run:      runInfo(run),
		Commands: make([]CommandInfo, 0, len(records)),
	}
	for _, rec := range records {
		info := commandInfo(rec)
		result.Commands = append(result.Commands, info)
		if info.Error != "" {
			result.Stats.Rejections++
		}
		if info.Tick > result.Stats.Ticks {
			result.Stats.Ticks = info.Tick
		}
	}
	result.Stats.TotalCommands = len(records)

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputRunTraceText(cmd, result, opts.Verbose)
}

// runInfo converts a stored run for display.
func runInfo(run trace.Run) RunInfo {
	return RunInfo{
		ID:         run.ID,
		Label:      run.Label,
		Device:     run.Device,
		UpdateRate: run.UpdateRate.String(),
		StartedAt:  run.StartedAt.UTC().Format(time.RFC3339),
	}
}

// commandInfo converts a stored command for display.
func commandInfo(rec trace.Record) CommandInfo {
	info := CommandInfo{
		Tick:     rec.Tick,
		Seq:      rec.Seq,
		Command:  rec.Kind.String(),
		EffectID: rec.EffectID,
		Error:    rec.Err,
	}
	if rec.Simple != nil {
		x, y := rec.Simple.X, rec.Simple.Y
		info.X, info.Y = &x, &y
	}
	if rec.Rumble != nil {
		strong, weak := rec.Rumble.Strong, rec.Rumble.Weak
		info.Strong, info.Weak = &strong, &weak
	}
	return info
}

// outputTraceJSON outputs a trace query result as JSON.
func outputTraceJSON(cmd *cobra.Command, result interface{}) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputRunTraceText outputs a run's command timeline as text.
func outputRunTraceText(cmd *cobra.Command, result RunTraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Run: %s (%s)\n", result.Run.ID, result.Run.Label)
	fmt.Fprintf(w, "Device: %s, update rate %s, started %s\n", result.Run.Device, result.Run.UpdateRate, result.Run.StartedAt)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Commands) == 0 {
		fmt.Fprintln(w, "  (no commands)")
	} else {
		for _, info := range result.Commands {
			fmt.Fprintf(w, "  [%d] tick=%d %s%s\n", info.Seq, info.Tick, info.Command, commandSummary(info))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Commands:   %d\n", result.Stats.TotalCommands)
	fmt.Fprintf(w, "  Rejections: %d\n", result.Stats.Rejections)
	fmt.Fprintf(w, "  Last tick:  %d\n", result.Stats.Ticks)

	return nil
}

// commandSummary formats a command's payload for the text timeline.
func commandSummary(info CommandInfo) string {
	switch {
	case info.X != nil || info.Y != nil:
		var x, y int32
		if info.X != nil {
			x = *info.X
		}
		if info.Y != nil {
			y = *info.Y
		}
		return fmt.Sprintf(" x=%d y=%d", x, y)
	case info.Strong != nil || info.Weak != nil:
		var s, wk uint32
		if info.Strong != nil {
			s = *info.Strong
		}
		if info.Weak != nil {
			wk = *info.Weak
		}
		return fmt.Sprintf(" strong=%d weak=%d", s, wk)
	case info.EffectID != 0:
		if info.Error != "" {
			return fmt.Sprintf(" effect=%d error=%q", info.EffectID, info.Error)
		}
		return fmt.Sprintf(" effect=%d", info.EffectID)
	default:
		return ""
	}
}

// truncateID truncates a long run id for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
