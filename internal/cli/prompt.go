package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/codeprompt/internal/config"
	"github.com/temirov/codeprompt/internal/output"
	"github.com/temirov/codeprompt/internal/pattern"
	"github.com/temirov/codeprompt/internal/pipeline"
	"github.com/temirov/codeprompt/internal/tokenizer"
	"github.com/temirov/codeprompt/internal/types"
	"github.com/temirov/codeprompt/internal/utils"
	"github.com/temirov/codeprompt/internal/watch"
)

const (
	defaultPath = "."

	includeFlagName         = "include"
	excludeFlagName         = "exclude"
	includePriorityFlagName = "include-priority"
	noGitignoreFlagName     = "no-gitignore"
	noIgnoreFlagName        = "no-ignore"
	includeGitFlagName      = "git"
	lineNumbersFlagName     = "line-numbers"
	noCodeBlockFlagName     = "no-codeblock"
	absolutePathsFlagName   = "absolute-paths"
	templateFlagName        = "template"
	variableFlagName        = "var"
	tokensFlagName          = "tokens"
	encodingFlagName        = "encoding"
	modelFlagName           = "model"
	fileTokensFlagName      = "file-tokens"
	diffFlagName            = "diff"
	diffBranchFlagName      = "git-diff-branch"
	logBranchFlagName       = "git-log-branch"
	gitRequiredFlagName     = "git-required"
	outputFlagName          = "output"
	formatFlagName          = "format"
	noClipboardFlagName     = "no-clipboard"
	workersFlagName         = "workers"
	watchFlagName           = "watch"
	configFlagName          = "config"
	verboseFlagName         = "verbose"
	versionFlagName         = "version"

	invalidFormatMessage      = "invalid format value %q; expected raw, json or xml"
	invalidVariableMessage    = "invalid --var %q; expected key=value"
	watchingMessageFormat     = "Watching %s for changes. Press Ctrl+C to stop."
	workingDirectoryErrFormat = "unable to determine working directory: %w"
)

type promptFlags struct {
	include         []string
	exclude         []string
	includePriority bool
	noGitignore     bool
	noIgnore        bool
	includeGit      bool
	lineNumbers     bool
	noCodeBlock     bool
	absolutePaths   bool
	templatePath    string
	variables       []string
	tokens          bool
	encoding        string
	model           string
	fileTokens      bool
	diff            bool
	diffBranch      string
	logBranch       string
	gitRequired     bool
	outputPath      string
	format          string
	noClipboard     bool
	workers         int
	watch           bool
	configPath      string
	verbose         bool
	version         bool
}

func (flags *promptFlags) register(command *cobra.Command) {
	flagSet := command.Flags()
	flagSet.StringArrayVarP(&flags.include, includeFlagName, "i", nil, "include glob, repeatable or comma separated")
	flagSet.StringArrayVarP(&flags.exclude, excludeFlagName, "e", nil, "exclude glob, repeatable or comma separated")
	registerBooleanFlag(flagSet, &flags.includePriority, includePriorityFlagName, "", false, "let include globs win over exclude globs")
	registerBooleanFlag(flagSet, &flags.noGitignore, noGitignoreFlagName, "", false, "do not read .gitignore files")
	registerBooleanFlag(flagSet, &flags.noIgnore, noIgnoreFlagName, "", false, "do not read .ignore files")
	registerBooleanFlag(flagSet, &flags.includeGit, includeGitFlagName, "", false, "include the .git directory")
	registerBooleanFlag(flagSet, &flags.lineNumbers, lineNumbersFlagName, "l", false, "prefix file lines with line numbers")
	registerBooleanFlag(flagSet, &flags.noCodeBlock, noCodeBlockFlagName, "", false, "do not wrap file content in fenced code blocks")
	registerBooleanFlag(flagSet, &flags.absolutePaths, absolutePathsFlagName, "", false, "label files with absolute paths")
	flagSet.StringVarP(&flags.templatePath, templateFlagName, "t", "", "path to a custom prompt template")
	flagSet.StringArrayVar(&flags.variables, variableFlagName, nil, "template variable as key=value, repeatable")
	registerBooleanFlag(flagSet, &flags.tokens, tokensFlagName, "", true, "count the tokens of the rendered prompt")
	flagSet.StringVarP(&flags.encoding, encodingFlagName, "c", tokenizer.DefaultEncoding, "tokenizer encoding: "+strings.Join(tokenizer.EncodingNames(), ", "))
	flagSet.StringVar(&flags.model, modelFlagName, "", "select the tokenizer encoding by model name")
	registerBooleanFlag(flagSet, &flags.fileTokens, fileTokensFlagName, "", false, "count tokens for every file")
	registerBooleanFlag(flagSet, &flags.diff, diffFlagName, "d", false, "include the diff from HEAD to the working tree")
	flagSet.StringVar(&flags.diffBranch, diffBranchFlagName, "", "include the diff between two refs, as from,to")
	flagSet.StringVar(&flags.logBranch, logBranchFlagName, "", "include the log between two refs, as from,to")
	registerBooleanFlag(flagSet, &flags.gitRequired, gitRequiredFlagName, "", false, "fail instead of warning when git context is unavailable")
	flagSet.StringVarP(&flags.outputPath, outputFlagName, "o", "", "write the prompt to a file")
	flagSet.StringVar(&flags.format, formatFlagName, types.FormatRaw, "output format: raw, json or xml")
	registerBooleanFlag(flagSet, &flags.noClipboard, noClipboardFlagName, "", false, "do not copy the prompt to the clipboard")
	flagSet.IntVar(&flags.workers, workersFlagName, 0, "concurrent directory and file readers, 0 uses the CPU count")
	registerBooleanFlag(flagSet, &flags.watch, watchFlagName, "", false, "regenerate the prompt whenever files change")
	flagSet.StringVar(&flags.configPath, configFlagName, "", "configuration file used instead of ./"+utils.ConfigFileName)
	registerBooleanFlag(flagSet, &flags.verbose, verboseFlagName, "v", false, "log debug details to stderr")
	registerBooleanFlag(flagSet, &flags.version, versionFlagName, "", false, "display application version")
}

// promptSettings is the merged result of configuration files and flags.
type promptSettings struct {
	pipeline pipeline.Options
	output   output.Options
	watch    bool
}

// resolvePromptSettings merges configuration with flags. A flag wins only when it was
// set explicitly on the command line.
func resolvePromptSettings(command *cobra.Command, arguments []string, flags *promptFlags, applicationConfig config.ApplicationConfiguration, workingDirectory string) (promptSettings, error) {
	changed := command.Flags().Changed
	prompt := applicationConfig.Prompt

	root := defaultPath
	if len(arguments) > 0 {
		root = arguments[0]
	}

	format := firstNonEmpty(prompt.Format, types.FormatRaw)
	if changed(formatFlagName) {
		format = flags.format
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if !output.IsSupportedFormat(format) {
		return promptSettings{}, fmt.Errorf(invalidFormatMessage, format)
	}

	variables, variablesErr := mergeVariables(prompt.Variables, flags.variables)
	if variablesErr != nil {
		return promptSettings{}, variablesErr
	}

	include := prompt.Paths.Include
	if changed(includeFlagName) {
		include = flags.include
	}
	exclude := prompt.Paths.Exclude
	if changed(excludeFlagName) {
		exclude = flags.exclude
	}

	options := pipeline.Options{
		Root: resolvePath(workingDirectory, root),
		Patterns: types.PatternSet{
			Include:         include,
			Exclude:         exclude,
			IncludePriority: boolSetting(changed(includePriorityFlagName), flags.includePriority, prompt.Paths.IncludePriority, false),
		},
		UseGitignore:  boolSetting(changed(noGitignoreFlagName), !flags.noGitignore, prompt.Paths.UseGitignore, true),
		UseIgnoreFile: boolSetting(changed(noIgnoreFlagName), !flags.noIgnore, prompt.Paths.UseIgnoreFile, true),
		IncludeGit:    boolSetting(changed(includeGitFlagName), flags.includeGit, prompt.Paths.IncludeGit, false),
		LineNumbers:   boolSetting(changed(lineNumbersFlagName), flags.lineNumbers, prompt.LineNumbers, false),
		CodeBlock:     boolSetting(changed(noCodeBlockFlagName), !flags.noCodeBlock, prompt.CodeBlock, true),
		AbsolutePaths: boolSetting(changed(absolutePathsFlagName), flags.absolutePaths, prompt.AbsolutePaths, false),
		Variables:     variables,
		CountTokens:   boolSetting(changed(tokensFlagName), flags.tokens, prompt.Tokens.Enabled, true),
		PerFileTokens: boolSetting(changed(fileTokensFlagName), flags.fileTokens, prompt.Tokens.PerFile, false),
		Encoding:      stringSetting(changed(encodingFlagName), flags.encoding, prompt.Tokens.Encoding, tokenizer.DefaultEncoding),
		Model:         stringSetting(changed(modelFlagName), flags.model, prompt.Tokens.Model, ""),
		WorkingDiff:   boolSetting(changed(diffFlagName), flags.diff, prompt.Git.Diff, false),
		DiffBranch:    stringSetting(changed(diffBranchFlagName), flags.diffBranch, prompt.Git.DiffBranch, ""),
		LogBranch:     stringSetting(changed(logBranchFlagName), flags.logBranch, prompt.Git.LogBranch, ""),
		GitRequired:   boolSetting(changed(gitRequiredFlagName), flags.gitRequired, prompt.Git.Required, false),
		Workers:       config.IntValue(prompt.Workers, 0),
	}
	if changed(workersFlagName) {
		options.Workers = flags.workers
	}
	if templatePath := stringSetting(changed(templateFlagName), flags.templatePath, prompt.Template, ""); templatePath != "" {
		options.TemplatePath = resolvePath(workingDirectory, templatePath)
	}
	if options.PerFileTokens {
		options.CountTokens = true
	}

	outputPath := stringSetting(changed(outputFlagName), flags.outputPath, prompt.Output, "")
	if outputPath != "" {
		outputPath = resolvePath(workingDirectory, outputPath)
	}
	return promptSettings{
		pipeline: options,
		output: output.Options{
			Format:     format,
			OutputPath: outputPath,
			Clipboard:  boolSetting(changed(noClipboardFlagName), !flags.noClipboard, prompt.Clipboard, true),
			ShowTokens: options.CountTokens,
		},
		watch: flags.watch,
	}, nil
}

func runPrompt(command *cobra.Command, arguments []string, flags *promptFlags, dependencies Dependencies) error {
	logger, loggerErr := buildLogger(dependencies, flags.verbose)
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
		ExplicitFilePath: flags.configPath,
		HomeDirectory:    dependencies.HomeDirectory,
	})
	if configErr != nil {
		return configErr
	}
	settings, settingsErr := resolvePromptSettings(command, arguments, flags, applicationConfig, workingDirectory)
	if settingsErr != nil {
		return settingsErr
	}

	interactive := isTerminal(dependencies.Stderr)
	settings.pipeline.Logger = logger
	settings.output.Stdout = dependencies.Stdout
	settings.output.Stderr = dependencies.Stderr
	settings.output.Copier = dependencies.Copier
	settings.output.Styled = interactive
	settings.output.Logger = logger

	generate := func(ctx context.Context) error {
		indicator := startProgress(dependencies.Stderr, interactive)
		runOptions := settings.pipeline
		runOptions.Progress = indicator.update
		result, runErr := pipeline.Run(ctx, runOptions)
		indicator.stop()
		if runErr != nil {
			return runErr
		}
		for _, warning := range result.Warnings {
			logger.Warn("skipped", zap.String("stage", warning.Stage), zap.String("path", warning.Path), zap.Error(warning.Err))
		}
		return output.Emit(result, settings.output)
	}

	ctx := command.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if firstErr := generate(ctx); firstErr != nil {
		if !settings.watch || isConfigurationError(firstErr) {
			return firstErr
		}
		logger.Warn("prompt generation failed", zap.Error(firstErr))
	}
	if !settings.watch {
		return nil
	}

	fmt.Fprintf(dependencies.Stderr, watchingMessageFormat+"\n", settings.pipeline.Root)
	watcher := watch.New(settings.pipeline.Root, watch.Options{
		Logger: logger,
		Skip:   watchSkipFunction(settings.pipeline.Patterns),
	})
	return watcher.Run(ctx, generate)
}

// watchSkipFunction ignores change events under excluded directories.
func watchSkipFunction(patterns types.PatternSet) func(string) bool {
	matcher, compileErr := pattern.Compile(patterns, config.IgnoreRules{})
	if compileErr != nil {
		return nil
	}
	return func(relativePath string) bool {
		return !matcher.ShouldDescend(relativePath)
	}
}

func isConfigurationError(err error) bool {
	var configError *pipeline.ConfigError
	return errors.As(err, &configError)
}

func mergeVariables(configured map[string]string, assignments []string) (map[string]string, error) {
	merged := make(map[string]string, len(configured)+len(assignments))
	for key, value := range configured {
		merged[key] = value
	}
	for _, assignment := range assignments {
		key, value, found := strings.Cut(assignment, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf(invalidVariableMessage, assignment)
		}
		merged[key] = value
	}
	if len(merged) == 0 {
		return nil, nil
	}
	return merged, nil
}

func boolSetting(flagChanged bool, flagValue bool, configured *bool, fallback bool) bool {
	if flagChanged {
		return flagValue
	}
	return config.BoolValue(configured, fallback)
}

func stringSetting(flagChanged bool, flagValue string, configured string, fallback string) string {
	if flagChanged {
		return flagValue
	}
	return firstNonEmpty(configured, fallback)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func resolveWorkingDirectory(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	current, err := filepath.Abs(defaultPath)
	if err != nil {
		return "", fmt.Errorf(workingDirectoryErrFormat, err)
	}
	return current, nil
}

func resolvePath(workingDirectory string, candidate string) string {
	if filepath.IsAbs(candidate) || workingDirectory == "" {
		return candidate
	}
	return filepath.Join(workingDirectory, candidate)
}
