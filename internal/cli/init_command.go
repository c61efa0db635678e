package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/temirov/codeprompt/internal/config"
)

const (
	initUse              = "init"
	initShortDescription = "write a default configuration file"
	initLongDescription  = `Write the default configuration to ./.codeprompt.yaml, or with --global to
~/.codeprompt/config.yaml. Existing files are kept unless --force is given.`
	initGlobalFlagName  = "global"
	initForceFlagName   = "force"
	initCompletedFormat = "Configuration written to %s\n"
)

func newInitCommand(dependencies Dependencies) *cobra.Command {
	var global bool
	var force bool
	command := &cobra.Command{
		Use:   initUse,
		Short: initShortDescription,
		Long:  initLongDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			target := config.InitTargetLocal
			if global {
				target = config.InitTargetGlobal
			}
			destination, initErr := config.InitializeConfiguration(config.InitOptions{
				Target:           target,
				Force:            force,
				WorkingDirectory: dependencies.WorkingDirectory,
				HomeDirectory:    dependencies.HomeDirectory,
			})
			if initErr != nil {
				return initErr
			}
			_, printErr := fmt.Fprintf(command.OutOrStdout(), initCompletedFormat, destination)
			return printErr
		},
	}
	registerBooleanFlag(command.Flags(), &global, initGlobalFlagName, "", false, "write the global configuration instead of the local one")
	registerBooleanFlag(command.Flags(), &force, initForceFlagName, "", false, "overwrite an existing configuration file")
	return command
}
