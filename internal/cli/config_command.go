package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/temirov/ctxtree/internal/config"
	"github.com/temirov/ctxtree/internal/utils"
)

const (
	configUse                  = "config"
	configShortDescription     = "manage ctxtree configuration"
	configInitUse              = "init"
	configInitShortDescription = "write a default configuration file"
	configInitLongDescription  = `Write a default configuration file.
By default the file is written to ` + utils.LocalConfigFileName + ` in the working directory; --global writes ~/` + utils.GlobalConfigDirectoryName + `/` + utils.ConfigFileName + ` instead.`
	globalFlagName        = "global"
	globalFlagDescription = "write the global configuration file"
	forceFlagName         = "force"
	forceFlagDescription  = "overwrite an existing configuration file"

	configWrittenFormat = "configuration written to %s\n"
)

// createConfigCommand returns the config subcommand.
func createConfigCommand() *cobra.Command {
	var globalTarget bool
	var force bool

	configCommand := &cobra.Command{
		Use:   configUse,
		Short: configShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
	}

	initCommand := &cobra.Command{
		Use:   configInitUse,
		Short: configInitShortDescription,
		Long:  configInitLongDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			target := config.InitTargetLocal
			if globalTarget {
				target = config.InitTargetGlobal
			}
			path, initError := config.InitializeConfiguration(config.InitOptions{Target: target, Force: force})
			if initError != nil {
				return initError
			}
			fmt.Fprintf(command.OutOrStdout(), configWrittenFormat, path)
			return nil
		},
	}
	registerToggleFlag(initCommand.Flags(), &globalTarget, globalFlagName, false, globalFlagDescription)
	registerToggleFlag(initCommand.Flags(), &force, forceFlagName, false, forceFlagDescription)

	configCommand.AddCommand(initCommand)
	return configCommand
}
