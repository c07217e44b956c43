package cli

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/spf13/cobra"

	"github.com/roach88/ffmix/internal/harness"
)

//go:embed scenario_schema.cue
var scenarioSchema string

// ValidationError describes one problem found in a scenario file.
type ValidationError struct {
	File    string `json:"file"`
	Line    int    `json:"line,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  int               `json:"files"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario.yaml>...",
		Short: "Validate scenario files without running them",
		Long: `Validate scenario YAML files against the scenario schema.

Validation is two-tier: the CUE schema catches structural mistakes
(unknown fields, out-of-range values) with line positions, then the
harness parser checks the semantic rules (ref binding, effect kind and
parameter consistency).

Exit codes:
  0 - All files valid
  1 - Validation errors found
  2 - Command error (file not readable, etc.)

Examples:
  ffmix validate ./scenarios/combined_sum.yaml
  ffmix validate ./scenarios/*.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})))

	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(scenarioSchema).LookupPath(cue.ParsePath("#Scenario"))
	if err := schema.Err(); err != nil {
		return WrapExitError(ExitCommandError, "failed to compile scenario schema", err)
	}

	var allErrors []ValidationError
	for _, path := range paths {
		slog.Debug("validating scenario file", "path", path)
		allErrors = append(allErrors, validateFile(ctx, schema, path)...)
	}

	if len(allErrors) > 0 {
		return outputValidationErrors(formatter, len(paths), allErrors)
	}
	return outputValidateSuccess(formatter, len(paths))
}

// validateFile runs both validation tiers over one scenario file.
func validateFile(ctx *cue.Context, schema cue.Value, path string) []ValidationError {
	data, err := os.ReadFile(path)
	if err != nil {
		return []ValidationError{{
			File:    path,
			Code:    ErrCodeNotFound,
			Message: fmt.Sprintf("failed to read file: %v", err),
		}}
	}

	file, err := cueyaml.Extract(path, data)
	if err != nil {
		return []ValidationError{{
			File:    path,
			Line:    lineOf(err),
			Code:    ErrCodeBadYAML,
			Message: fmt.Sprintf("invalid YAML: %v", err),
		}}
	}

	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return cueValidationErrors(path, err)
	}

	if err := schema.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return cueValidationErrors(path, err)
	}

	// Tier two: the harness parser applies the semantic rules the
	// schema cannot express.
	if _, err := harness.ParseScenario(data); err != nil {
		return []ValidationError{{
			File:    path,
			Code:    ErrCodeSchema,
			Message: err.Error(),
		}}
	}
	return nil
}

// cueValidationErrors expands a CUE error list into per-position
// validation errors.
func cueValidationErrors(path string, err error) []ValidationError {
	var errs []ValidationError
	for _, e := range cueerrors.Errors(err) {
		verr := ValidationError{
			File:    path,
			Code:    ErrCodeSchema,
			Message: e.Error(),
		}
		if pos := e.Position(); pos.IsValid() {
			verr.Line = pos.Line()
		}
		errs = append(errs, verr)
	}
	if len(errs) == 0 {
		errs = append(errs, ValidationError{File: path, Code: ErrCodeSchema, Message: err.Error()})
	}
	return errs
}

// lineOf extracts a line position from a CUE error, if it carries one.
func lineOf(err error) int {
	var cueErr cueerrors.Error
	if !cueerrors.As(err, &cueErr) {
		return 0
	}
	if pos := cueErr.Position(); pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, files int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Files: files})
	}

	fmt.Fprintf(formatter.Writer, "✓ %d scenario file(s) valid\n", files)
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, files int, errs []ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Files: files, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := formatter.respond(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", err.File, err.Line)
		} else {
			fmt.Fprintln(formatter.Writer, err.File)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
