package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	ignoreUse                    = "ignore"
	ignoreShortDescription       = "manage persisted ignore patterns"
	ignoreLongDescription        = `List, add and remove the ignore patterns stored in the settings file.
Persisted patterns apply to every tree and watch run in addition to .ignore and .gitignore files.`
	ignoreListUse                = "list"
	ignoreListShortDescription   = "print persisted ignore patterns"
	ignoreAddUse                 = "add <pattern>..."
	ignoreAddShortDescription    = "persist ignore patterns"
	ignoreRemoveUse              = "remove <pattern>..."
	ignoreRemoveShortDescription = "delete persisted ignore patterns"
	ignoreRemoveAlias            = "rm"

	addedPatternFormat     = "added %s\n"
	presentPatternFormat   = "already present: %s\n"
	removedPatternFormat   = "removed %s\n"
	missingPatternFormat   = "not present: %s\n"
	settingsLocationFormat = "# %s\n"
)

// createIgnoreCommand returns the ignore subcommand and its children.
func createIgnoreCommand(options *globalOptions) *cobra.Command {
	ignoreCommand := &cobra.Command{
		Use:   ignoreUse,
		Short: ignoreShortDescription,
		Long:  ignoreLongDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
	}

	listCommand := &cobra.Command{
		Use:   ignoreListUse,
		Short: ignoreListShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			store, storeError := options.openPatternStore()
			if storeError != nil {
				return storeError
			}
			writer := command.OutOrStdout()
			fmt.Fprintf(writer, settingsLocationFormat, store.Path())
			for _, pattern := range store.IgnorePatterns() {
				fmt.Fprintln(writer, pattern)
			}
			return nil
		},
	}

	addCommand := &cobra.Command{
		Use:   ignoreAddUse,
		Short: ignoreAddShortDescription,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			store, storeError := options.openPatternStore()
			if storeError != nil {
				return storeError
			}
			for _, pattern := range arguments {
				added, addError := store.Add(pattern)
				if addError != nil {
					return addError
				}
				if added {
					fmt.Fprintf(command.OutOrStdout(), addedPatternFormat, pattern)
				} else {
					fmt.Fprintf(command.OutOrStdout(), presentPatternFormat, pattern)
				}
			}
			return nil
		},
	}

	removeCommand := &cobra.Command{
		Use:     ignoreRemoveUse,
		Aliases: []string{ignoreRemoveAlias},
		Short:   ignoreRemoveShortDescription,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			store, storeError := options.openPatternStore()
			if storeError != nil {
				return storeError
			}
			for _, pattern := range arguments {
				removed, removeError := store.Remove(pattern)
				if removeError != nil {
					return removeError
				}
				if removed {
					fmt.Fprintf(command.OutOrStdout(), removedPatternFormat, pattern)
				} else {
					fmt.Fprintf(command.OutOrStdout(), missingPatternFormat, pattern)
				}
			}
			return nil
		},
	}

	ignoreCommand.AddCommand(listCommand, addCommand, removeCommand)
	return ignoreCommand
}
