package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/temirov/ctxtree/internal/output"
	"github.com/temirov/ctxtree/internal/services/filemap"
	"github.com/temirov/ctxtree/internal/tokenizer"
	"github.com/temirov/ctxtree/internal/utils"
)

const (
	treeUse              = "tree [root]"
	treeAlias            = "t"
	treeShortDescription = "display the directory tree with token estimates (" + treeAlias + ")"
	treeLongDescription  = `Build the tree model of a directory once and print it.
Every file is classified as text or binary and text files carry a token estimate.
Use --format to select raw or json output and --copy to place the output on the clipboard.`
	treeUsageExample = `  # Render the current directory
  ctxtree tree

  # Exclude vendor and print JSON
  ctxtree tree -e vendor --format json ./project

  # Count tokens with a tiktoken encoding and copy the result
  ctxtree tree --model gpt-4o --copy`

	copyFlagName        = "copy"
	copyFlagDescription = "copy the output to the system clipboard"

	errorCopyFormat = "copying output to clipboard: %w"
)

// createTreeCommand returns the tree subcommand.
func createTreeCommand(options *globalOptions) *cobra.Command {
	var pathConfiguration pathOptions
	var renderConfiguration renderOptions
	var copyEnabled bool

	treeCommand := &cobra.Command{
		Use:     treeUse,
		Aliases: []string{treeAlias},
		Short:   treeShortDescription,
		Long:    treeLongDescription,
		Example: treeUsageExample,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			applicationConfiguration, configurationError := options.loadConfiguration()
			if configurationError != nil {
				return configurationError
			}
			treeConfiguration := applicationConfiguration.Tree
			resolvedRender, renderError := renderConfiguration.resolve(command, treeConfiguration.Format, treeConfiguration.Tokens)
			if renderError != nil {
				return renderError
			}
			if !command.Flags().Changed(copyFlagName) && treeConfiguration.Clipboard != nil {
				copyEnabled = *treeConfiguration.Clipboard
			}

			validatedRoot, rootError := resolveRoot(arguments)
			if rootError != nil {
				return rootError
			}
			root := validatedRoot.AbsolutePath
			logger, loggerError := utils.NewApplicationLogger()
			if loggerError != nil {
				return loggerError
			}
			defer func() { _ = logger.Sync() }()

			counter, resolvedModel, counterError := tokenizer.NewCounter(tokenizer.Config{Model: resolvedRender.model})
			if counterError != nil {
				return counterError
			}

			service := filemap.NewService(filemap.Options{
				Logger:   logger,
				Patterns: newIgnoreSource(logger, options, root, pathConfiguration.resolve(command, treeConfiguration.Paths)),
				Counter:  counter,
			})
			defer func() { _ = service.Close() }()

			if _, buildError := service.BuildTree(command.Context(), root); buildError != nil {
				return buildError
			}
			service.WaitForDetails()

			rendered, renderError := output.RenderSnapshot(service.Snapshot(), resolvedRender.format, resolvedModel)
			if renderError != nil {
				return renderError
			}
			if writeError := writeRendered(command.OutOrStdout(), rendered); writeError != nil {
				return writeError
			}
			if copyEnabled {
				if copyError := clipboardCopier.Copy(rendered); copyError != nil {
					return fmt.Errorf(errorCopyFormat, copyError)
				}
			}
			return nil
		},
	}

	addPathFlags(treeCommand, &pathConfiguration)
	addRenderFlags(treeCommand, &renderConfiguration)
	registerToggleFlag(treeCommand.Flags(), &copyEnabled, copyFlagName, false, copyFlagDescription)
	return treeCommand
}
