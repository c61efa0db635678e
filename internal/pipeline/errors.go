package pipeline

import "fmt"

// Configuration fields named by ConfigError.
const (
	FieldPattern     = "pattern"
	FieldTemplate    = "template"
	FieldEncoding    = "encoding"
	FieldModel       = "model"
	FieldDiffBranch  = "git-diff-branch"
	FieldLogBranch   = "git-log-branch"
	FieldRoot        = "path"
	FieldIgnoreRules = "ignore"
)

// ConfigError reports invalid configuration detected before any traversal begins.
type ConfigError struct {
	Field string
	Value string
	Err   error
}

func (configError *ConfigError) Error() string {
	if configError.Value == "" {
		return fmt.Sprintf("invalid %s: %v", configError.Field, configError.Err)
	}
	return fmt.Sprintf("invalid %s %q: %v", configError.Field, configError.Value, configError.Err)
}

func (configError *ConfigError) Unwrap() error {
	return configError.Err
}
