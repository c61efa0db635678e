// Package cli provides the command line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/temirov/codeprompt/internal/services/clipboard"
	"github.com/temirov/codeprompt/internal/utils"
)

const (
	rootUse              = "codeprompt [path]"
	rootShortDescription = "turn a source tree into a single LLM prompt"
	rootLongDescription  = `codeprompt walks a directory, filters it with include and exclude globs and
ignore files, and renders the source tree and file contents through a template.
The prompt is copied to the clipboard, written with --output, or printed.
Use --format json or xml to emit a structured report instead.`
	rootUsageExample = `  # Copy a prompt for the current project
  codeprompt

  # Only Go files, with line numbers, written to a file
  codeprompt ./service -i "*.go" -l -o prompt.md

  # Include the diff and log between main and the current branch
  codeprompt --git-diff-branch main,HEAD --git-log-branch main,HEAD`
	versionTemplate = "codeprompt version: %s\n"
)

// Dependencies carries the process environment into the commands.
type Dependencies struct {
	Stdout io.Writer
	Stderr io.Writer
	Copier clipboard.Copier
	// WorkingDirectory resolves relative paths and the local configuration file.
	WorkingDirectory string
	HomeDirectory    string
	// Logger overrides the logger built from --verbose.
	Logger *zap.Logger
}

func (dependencies Dependencies) withDefaults() Dependencies {
	if dependencies.Stdout == nil {
		dependencies.Stdout = os.Stdout
	}
	if dependencies.Stderr == nil {
		dependencies.Stderr = os.Stderr
	}
	if dependencies.Copier == nil {
		dependencies.Copier = clipboard.NewService()
	}
	return dependencies
}

// Execute runs the codeprompt application. SIGINT and SIGTERM cancel the run.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rootCommand := NewRootCommand(Dependencies{})
	rootCommand.SetArgs(normalizeBooleanFlagArguments(rootCommand, os.Args[1:]))
	return rootCommand.ExecuteContext(ctx)
}

// NewRootCommand builds the root Cobra command with its subcommands.
func NewRootCommand(dependencies Dependencies) *cobra.Command {
	dependencies = dependencies.withDefaults()
	flags := &promptFlags{}

	rootCommand := &cobra.Command{
		Use:           rootUse,
		Short:         rootShortDescription,
		Long:          rootLongDescription,
		Example:       rootUsageExample,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			if flags.version {
				_, printErr := fmt.Fprintf(command.OutOrStdout(), versionTemplate, utils.GetApplicationVersion())
				return printErr
			}
			return runPrompt(command, arguments, flags, dependencies)
		},
	}
	rootCommand.SetOut(dependencies.Stdout)
	rootCommand.SetErr(dependencies.Stderr)
	flags.register(rootCommand)
	rootCommand.AddCommand(
		newInitCommand(dependencies),
		newServeCommand(dependencies),
	)
	return rootCommand
}

func buildLogger(dependencies Dependencies, verbose bool) (*zap.Logger, error) {
	if dependencies.Logger != nil {
		return dependencies.Logger, nil
	}
	logger, loggerErr := utils.NewLeveledLogger(verbose)
	if loggerErr != nil {
		return nil, fmt.Errorf(utils.LoggerInitializationFailedMessageFormat, loggerErr)
	}
	return logger, nil
}

// isTerminal reports whether writer is a terminal, which enables the spinner and styled status lines.
func isTerminal(writer io.Writer) bool {
	file, isFile := writer.(*os.File)
	return isFile && term.IsTerminal(int(file.Fd()))
}
