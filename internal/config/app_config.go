package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/temirov/codeprompt/internal/utils"
)

// LoadOptions controls how application configuration is discovered.
type LoadOptions struct {
	WorkingDirectory string
	ExplicitFilePath string
	HomeDirectory    string
}

// ApplicationConfiguration holds command defaults read from configuration files.
type ApplicationConfiguration struct {
	Prompt PromptConfiguration `mapstructure:"prompt"`
	Serve  ServeConfiguration  `mapstructure:"serve"`
}

// PromptConfiguration defines defaults for prompt generation.
type PromptConfiguration struct {
	Format        string             `mapstructure:"format"`
	LineNumbers   *bool              `mapstructure:"line_numbers"`
	CodeBlock     *bool              `mapstructure:"code_block"`
	AbsolutePaths *bool              `mapstructure:"absolute_paths"`
	Template      string             `mapstructure:"template"`
	Variables     map[string]string  `mapstructure:"variables"`
	Output        string             `mapstructure:"output"`
	Clipboard     *bool              `mapstructure:"clipboard"`
	Workers       *int               `mapstructure:"workers"`
	Tokens        TokenConfiguration `mapstructure:"tokens"`
	Paths         PathConfiguration  `mapstructure:"paths"`
	Git           GitConfiguration   `mapstructure:"git"`
}

// TokenConfiguration controls token counting defaults.
type TokenConfiguration struct {
	Enabled  *bool  `mapstructure:"enabled"`
	Encoding string `mapstructure:"encoding"`
	Model    string `mapstructure:"model"`
	PerFile  *bool  `mapstructure:"per_file"`
}

// PathConfiguration configures inclusion and exclusion rules for path traversal.
type PathConfiguration struct {
	Include         []string `mapstructure:"include"`
	Exclude         []string `mapstructure:"exclude"`
	IncludePriority *bool    `mapstructure:"include_priority"`
	UseGitignore    *bool    `mapstructure:"use_gitignore"`
	UseIgnoreFile   *bool    `mapstructure:"use_ignore"`
	IncludeGit      *bool    `mapstructure:"include_git"`
}

// GitConfiguration configures the optional git context sections.
type GitConfiguration struct {
	Diff       *bool  `mapstructure:"diff"`
	DiffBranch string `mapstructure:"diff_branch"`
	LogBranch  string `mapstructure:"log_branch"`
	Required   *bool  `mapstructure:"required"`
}

// ServeConfiguration configures the prompt server.
type ServeConfiguration struct {
	Address string `mapstructure:"address"`
}

// LoadApplicationConfiguration loads configuration from global and local files.
// Local values override global ones.
func LoadApplicationConfiguration(options LoadOptions) (ApplicationConfiguration, error) {
	workingDirectory := options.WorkingDirectory
	if workingDirectory == "" {
		currentDirectory, err := os.Getwd()
		if err != nil {
			return ApplicationConfiguration{}, fmt.Errorf("determine working directory: %w", err)
		}
		workingDirectory = currentDirectory
	}

	var merged ApplicationConfiguration

	homeDirectory := options.HomeDirectory
	if homeDirectory == "" {
		if resolvedHome, err := os.UserHomeDir(); err == nil {
			homeDirectory = resolvedHome
		}
	}
	if homeDirectory != "" {
		globalPath := filepath.Join(homeDirectory, utils.GlobalConfigDirectoryName, utils.GlobalConfigFileName)
		globalConfig, loadErr := loadConfigurationFromPath(globalPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(globalConfig)
	}

	localPath, resolveErr := resolveLocalConfigPath(workingDirectory, options.ExplicitFilePath)
	if resolveErr != nil {
		return ApplicationConfiguration{}, resolveErr
	}
	if localPath != "" {
		if options.ExplicitFilePath != "" {
			if _, statErr := os.Stat(localPath); statErr != nil {
				return ApplicationConfiguration{}, fmt.Errorf("configuration file %s: %w", localPath, statErr)
			}
		}
		localConfig, loadErr := loadConfigurationFromPath(localPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(localConfig)
	}

	merged.Prompt.Paths.Include = utils.DeduplicatePatterns(merged.Prompt.Paths.Include)
	merged.Prompt.Paths.Exclude = utils.DeduplicatePatterns(merged.Prompt.Paths.Exclude)

	return merged, nil
}

func resolveLocalConfigPath(workingDirectory, explicitPath string) (string, error) {
	if explicitPath != "" {
		if filepath.IsAbs(explicitPath) {
			return explicitPath, nil
		}
		if workingDirectory == "" {
			absolute, err := filepath.Abs(explicitPath)
			if err != nil {
				return "", fmt.Errorf("resolve configuration path %s: %w", explicitPath, err)
			}
			return absolute, nil
		}
		return filepath.Join(workingDirectory, explicitPath), nil
	}
	if workingDirectory == "" {
		return "", nil
	}
	return filepath.Join(workingDirectory, utils.ConfigFileName), nil
}

func loadConfigurationFromPath(path string) (ApplicationConfiguration, error) {
	if path == "" {
		return ApplicationConfiguration{}, nil
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return ApplicationConfiguration{}, nil
		}
		return ApplicationConfiguration{}, fmt.Errorf("stat configuration %s: %w", path, statErr)
	}
	if info.IsDir() {
		return ApplicationConfiguration{}, fmt.Errorf("configuration path %s is a directory", path)
	}

	reader := viper.New()
	reader.SetConfigFile(path)
	reader.SetConfigType("yaml")
	if readErr := reader.ReadInConfig(); readErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf("read configuration from %s: %w", path, readErr)
	}
	var config ApplicationConfiguration
	if decodeErr := reader.Unmarshal(&config); decodeErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf("decode configuration from %s: %w", path, decodeErr)
	}
	return config, nil
}

// Merge overlays override onto the receiver returning the combined configuration.
func (config ApplicationConfiguration) Merge(override ApplicationConfiguration) ApplicationConfiguration {
	result := config
	result.Prompt = result.Prompt.merge(override.Prompt)
	if override.Serve.Address != "" {
		result.Serve.Address = override.Serve.Address
	}
	return result
}

func (config PromptConfiguration) merge(override PromptConfiguration) PromptConfiguration {
	result := config
	if override.Format != "" {
		result.Format = override.Format
	}
	if override.LineNumbers != nil {
		result.LineNumbers = cloneBool(override.LineNumbers)
	}
	if override.CodeBlock != nil {
		result.CodeBlock = cloneBool(override.CodeBlock)
	}
	if override.AbsolutePaths != nil {
		result.AbsolutePaths = cloneBool(override.AbsolutePaths)
	}
	if override.Template != "" {
		result.Template = override.Template
	}
	if len(override.Variables) > 0 {
		combined := make(map[string]string, len(result.Variables)+len(override.Variables))
		for key, value := range result.Variables {
			combined[key] = value
		}
		for key, value := range override.Variables {
			combined[key] = value
		}
		result.Variables = combined
	}
	if override.Output != "" {
		result.Output = override.Output
	}
	if override.Clipboard != nil {
		result.Clipboard = cloneBool(override.Clipboard)
	}
	if override.Workers != nil {
		result.Workers = cloneInt(override.Workers)
	}
	result.Tokens = result.Tokens.merge(override.Tokens)
	result.Paths = result.Paths.merge(override.Paths)
	result.Git = result.Git.merge(override.Git)
	return result
}

func (config TokenConfiguration) merge(override TokenConfiguration) TokenConfiguration {
	result := config
	if override.Enabled != nil {
		result.Enabled = cloneBool(override.Enabled)
	}
	if override.Encoding != "" {
		result.Encoding = override.Encoding
	}
	if override.Model != "" {
		result.Model = override.Model
	}
	if override.PerFile != nil {
		result.PerFile = cloneBool(override.PerFile)
	}
	return result
}

func (config PathConfiguration) merge(override PathConfiguration) PathConfiguration {
	result := config
	if len(override.Include) > 0 {
		result.Include = append([]string{}, utils.DeduplicatePatterns(override.Include)...)
	}
	if len(override.Exclude) > 0 {
		result.Exclude = append([]string{}, utils.DeduplicatePatterns(override.Exclude)...)
	}
	if override.IncludePriority != nil {
		result.IncludePriority = cloneBool(override.IncludePriority)
	}
	if override.UseGitignore != nil {
		result.UseGitignore = cloneBool(override.UseGitignore)
	}
	if override.UseIgnoreFile != nil {
		result.UseIgnoreFile = cloneBool(override.UseIgnoreFile)
	}
	if override.IncludeGit != nil {
		result.IncludeGit = cloneBool(override.IncludeGit)
	}
	return result
}

func (config GitConfiguration) merge(override GitConfiguration) GitConfiguration {
	result := config
	if override.Diff != nil {
		result.Diff = cloneBool(override.Diff)
	}
	if override.DiffBranch != "" {
		result.DiffBranch = override.DiffBranch
	}
	if override.LogBranch != "" {
		result.LogBranch = override.LogBranch
	}
	if override.Required != nil {
		result.Required = cloneBool(override.Required)
	}
	return result
}

func cloneBool(value *bool) *bool {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}

func cloneInt(value *int) *int {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}

// BoolValue dereferences value, returning fallback when it is unset.
func BoolValue(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

// IntValue dereferences value, returning fallback when it is unset.
func IntValue(value *int, fallback int) int {
	if value == nil {
		return fallback
	}
	return *value
}
