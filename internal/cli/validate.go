package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/nodom/internal/compiler"
	"github.com/roach88/nodom/internal/rules"
)

// Problem is one validation failure.
type Problem struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool      `json:"valid"`
	Service string    `json:"service,omitempty"`
	Actions []string  `json:"actions,omitempty"`
	Errors  []Problem `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-dir>",
		Short: "Validate a service description without serving it",
		Long: `Compile the CUE service description in a directory and check its action
rules against the layout and data: statement references, push and pop
targets, overlapping events and chained query cycles.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, configDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := compiler.Load(configDir)
	if err != nil {
		var le *compiler.LoadError
		if errors.As(err, &le) {
			return outputValidateError(formatter, loadErrorCode(le), le.Error(), nil)
		}
		var ce *compiler.CompileError
		if errors.As(err, &ce) {
			return outputValidationErrors(formatter, []Problem{compileProblem(ce)})
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	formatter.VerboseLog("Compiled %s: service %q, %d rule(s)", configDir, cfg.Service, len(cfg.Rules))

	if errs := rules.Validate(cfg.Rules, cfg.Targets()); len(errs) > 0 {
		problems := make([]Problem, len(errs))
		for i, e := range errs {
			problems[i] = Problem{
				Code:    e.Code,
				Field:   fmt.Sprintf("actions.%s.%s", e.Action, e.Field),
				Message: e.Message,
			}
		}
		return outputValidationErrors(formatter, problems)
	}

	table, err := cfg.Table()
	if err != nil {
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}
	return outputValidateSuccess(formatter, ValidationResult{
		Valid:   true,
		Service: cfg.Service,
		Actions: table.Actions(),
	})
}

func compileProblem(ce *compiler.CompileError) Problem {
	p := Problem{
		Code:    compileErrorCode(ce.Field),
		Field:   ce.Field,
		Message: ce.Message,
	}
	if ce.Pos.IsValid() {
		p.File = ce.Pos.Filename()
		p.Line = ce.Pos.Line()
	}
	return p
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Service description valid (%d action(s))\n", len(result.Actions))
	return nil
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []Problem) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, p := range errs {
		if p.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", p.File, p.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", p.Code, p.Field, p.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
