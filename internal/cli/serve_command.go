package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/temirov/codeprompt/internal/config"
	"github.com/temirov/codeprompt/internal/pipeline"
	"github.com/temirov/codeprompt/internal/services/server"
	"github.com/temirov/codeprompt/internal/tokenizer"
	"github.com/temirov/codeprompt/internal/types"
)

const (
	serveUse              = "serve"
	serveShortDescription = "serve prompts over HTTP"
	serveLongDescription  = `Start an HTTP server that renders prompts on request.
POST /prompt with {"path": "..."} returns the JSON report; GET /capabilities lists the endpoints.
Request fields override the defaults read from the configuration files.`
	serveAddressFlagName = "addr"
	serveListeningFormat = "Serving prompts on http://%s\n"
)

func newServeCommand(dependencies Dependencies) *cobra.Command {
	var address string
	var configPath string
	var verbose bool
	command := &cobra.Command{
		Use:   serveUse,
		Short: serveShortDescription,
		Long:  serveLongDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			logger, loggerErr := buildLogger(dependencies, verbose)
			if loggerErr != nil {
				return loggerErr
			}
			defer func() {
				_ = logger.Sync()
			}()
			workingDirectory, workingDirectoryErr := resolveWorkingDirectory(dependencies.WorkingDirectory)
			if workingDirectoryErr != nil {
				return workingDirectoryErr
			}
			applicationConfig, configErr := config.LoadApplicationConfiguration(config.LoadOptions{
				WorkingDirectory: workingDirectory,
				ExplicitFilePath: configPath,
				HomeDirectory:    dependencies.HomeDirectory,
			})
			if configErr != nil {
				return configErr
			}
			listenAddress := firstNonEmpty(applicationConfig.Serve.Address, server.DefaultAddress)
			if command.Flags().Changed(serveAddressFlagName) {
				listenAddress = address
			}

			promptServer := server.NewServer(server.Config{
				Address:  listenAddress,
				Defaults: serverDefaults(applicationConfig.Prompt),
				Logger:   logger,
			})
			ctx := command.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return promptServer.Run(ctx, func(boundAddress string) {
				fmt.Fprintf(command.ErrOrStderr(), serveListeningFormat, boundAddress)
			})
		},
	}
	command.Flags().StringVar(&address, serveAddressFlagName, server.DefaultAddress, "listen address")
	command.Flags().StringVar(&configPath, configFlagName, "", "configuration file used instead of the local one")
	registerBooleanFlag(command.Flags(), &verbose, verboseFlagName, "v", false, "log debug details to stderr")
	return command
}

// serverDefaults seeds every request from the prompt configuration.
func serverDefaults(prompt config.PromptConfiguration) pipeline.Options {
	return pipeline.Options{
		Patterns: types.PatternSet{
			Include:         prompt.Paths.Include,
			Exclude:         prompt.Paths.Exclude,
			IncludePriority: config.BoolValue(prompt.Paths.IncludePriority, false),
		},
		UseGitignore:  config.BoolValue(prompt.Paths.UseGitignore, true),
		UseIgnoreFile: config.BoolValue(prompt.Paths.UseIgnoreFile, true),
		IncludeGit:    config.BoolValue(prompt.Paths.IncludeGit, false),
		LineNumbers:   config.BoolValue(prompt.LineNumbers, false),
		CodeBlock:     config.BoolValue(prompt.CodeBlock, true),
		AbsolutePaths: config.BoolValue(prompt.AbsolutePaths, false),
		TemplatePath:  prompt.Template,
		Variables:     prompt.Variables,
		CountTokens:   config.BoolValue(prompt.Tokens.Enabled, true),
		PerFileTokens: config.BoolValue(prompt.Tokens.PerFile, false),
		Encoding:      firstNonEmpty(prompt.Tokens.Encoding, tokenizer.DefaultEncoding),
		Model:         prompt.Tokens.Model,
		WorkingDiff:   config.BoolValue(prompt.Git.Diff, false),
		DiffBranch:    prompt.Git.DiffBranch,
		LogBranch:     prompt.Git.LogBranch,
		GitRequired:   config.BoolValue(prompt.Git.Required, false),
		Workers:       config.IntValue(prompt.Workers, 0),
	}
}
