// Package cli provides the command line interface.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/ctxtree/internal/config"
	"github.com/temirov/ctxtree/internal/output"
	"github.com/temirov/ctxtree/internal/services/clipboard"
	"github.com/temirov/ctxtree/internal/tokenizer"
	"github.com/temirov/ctxtree/internal/types"
	"github.com/temirov/ctxtree/internal/utils"
)

const (
	exclusionFlagName     = "e"
	noGitignoreFlagName   = "no-gitignore"
	noIgnoreFlagName      = "no-ignore"
	includeGitFlagName    = "git"
	formatFlagName        = "format"
	modelFlagName         = "model"
	versionFlagName       = "version"
	configFlagName        = "config"
	settingsFlagName      = "settings"
	versionTemplate       = "ctxtree version: %s\n"
	defaultPath           = "."
	rootUse               = "ctxtree"
	rootShortDescription  = "ctxtree command line interface"
	rootLongDescription   = `ctxtree keeps a normalized model of a directory tree.
It renders the tree with token estimates, watches it for changes, and manages persisted ignore patterns.
Use --format to select raw or json output and --version to print the application version.`
	versionFlagDescription          = "display application version"
	configFlagDescription           = "configuration file overriding the local " + utils.LocalConfigFileName
	settingsFlagDescription         = "settings file holding persisted ignore patterns"
	exclusionFlagDescription        = "exclude path pattern"
	disableGitignoreFlagDescription = "do not use .gitignore"
	disableIgnoreFlagDescription    = "do not use .ignore"
	includeGitFlagDescription       = "include git directory"
	formatFlagDescription           = "output format (raw or json)"
	modelFlagDescription            = "tokenizer model; \"estimate\" uses the built-in estimator"

	errorRootPathFormat     = "resolving root %s: %w"
	errorRootNotDirectory   = "root %s is not a directory"
	logMessageSettingsError = "persisted ignore patterns unavailable"
)

var clipboardCopier clipboard.Copier = clipboard.NewService()

// Execute runs the ctxtree application.
func Execute() error {
	rootCommand := createRootCommand()
	rootCommand.SetArgs(normalizeToggleArguments(rootCommand, os.Args[1:]))
	return rootCommand.Execute()
}

// globalOptions stores the persistent root flags.
type globalOptions struct {
	configPath   string
	settingsPath string
}

func (options globalOptions) loadConfiguration() (config.ApplicationConfiguration, error) {
	return config.LoadApplicationConfiguration(config.LoadOptions{ExplicitFilePath: options.configPath})
}

// openPatternStore opens the persisted pattern list. The default location is
// used when no --settings flag was given.
func (options globalOptions) openPatternStore() (*config.PatternStore, error) {
	settingsPath := options.settingsPath
	if settingsPath == "" {
		defaultPath, pathError := config.DefaultPatternStorePath()
		if pathError != nil {
			return nil, pathError
		}
		settingsPath = defaultPath
	}
	return config.OpenPatternStore(settingsPath)
}

// createRootCommand builds the root Cobra command.
func createRootCommand() *cobra.Command {
	var showVersion bool
	var options globalOptions

	rootCommand := &cobra.Command{
		Use:          rootUse,
		Short:        rootShortDescription,
		Long:         rootLongDescription,
		SilenceUsage: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			if showVersion {
				fmt.Fprintf(command.OutOrStdout(), versionTemplate, utils.GetApplicationVersion())
				return nil
			}
			return command.Help()
		},
	}
	rootCommand.Flags().BoolVar(&showVersion, versionFlagName, false, versionFlagDescription)
	rootCommand.PersistentFlags().StringVar(&options.configPath, configFlagName, "", configFlagDescription)
	rootCommand.PersistentFlags().StringVar(&options.settingsPath, settingsFlagName, "", settingsFlagDescription)
	rootCommand.AddCommand(
		createTreeCommand(&options),
		createWatchCommand(&options),
		createIgnoreCommand(&options),
		createConfigCommand(),
	)
	rootCommand.InitDefaultHelpCmd()
	rootCommand.InitDefaultCompletionCmd()
	return rootCommand
}

// pathOptions stores configuration for path-related flags.
type pathOptions struct {
	exclusionPatterns []string
	disableGitignore  bool
	disableIgnoreFile bool
	includeGit        bool
}

// addPathFlags registers path-related flags on the command.
func addPathFlags(command *cobra.Command, options *pathOptions) {
	command.Flags().StringArrayVarP(&options.exclusionPatterns, exclusionFlagName, exclusionFlagName, nil, exclusionFlagDescription)
	registerToggleFlag(command.Flags(), &options.disableGitignore, noGitignoreFlagName, false, disableGitignoreFlagDescription)
	registerToggleFlag(command.Flags(), &options.disableIgnoreFile, noIgnoreFlagName, false, disableIgnoreFlagDescription)
	registerToggleFlag(command.Flags(), &options.includeGit, includeGitFlagName, false, includeGitFlagDescription)
}

// resolve overlays explicitly given flags onto the configured path settings.
func (options pathOptions) resolve(command *cobra.Command, configured config.PathConfiguration) config.IgnoreOptions {
	resolved := configured.IgnoreOptions()
	resolved.Exclude = utils.DeduplicatePatterns(append(resolved.Exclude, options.exclusionPatterns...))
	if command.Flags().Changed(noGitignoreFlagName) {
		resolved.UseGitignore = !options.disableGitignore
	}
	if command.Flags().Changed(noIgnoreFlagName) {
		resolved.UseIgnoreFile = !options.disableIgnoreFile
	}
	if command.Flags().Changed(includeGitFlagName) {
		resolved.IncludeGit = options.includeGit
	}
	return resolved
}

// renderOptions stores output flags shared by tree and watch.
type renderOptions struct {
	format string
	model  string
}

func addRenderFlags(command *cobra.Command, options *renderOptions) {
	command.Flags().StringVar(&options.format, formatFlagName, types.FormatRaw, formatFlagDescription)
	command.Flags().StringVar(&options.model, modelFlagName, tokenizer.EstimatorName, modelFlagDescription)
}

// resolve prefers explicit flags, then configured values, then flag defaults.
func (options renderOptions) resolve(command *cobra.Command, configuredFormat string, configured config.TokenConfiguration) (renderOptions, error) {
	resolved := options
	if !command.Flags().Changed(formatFlagName) && configuredFormat != "" {
		resolved.format = configuredFormat
	}
	if !command.Flags().Changed(modelFlagName) && configured.Model != "" {
		resolved.model = configured.Model
	}
	resolved.format = strings.ToLower(strings.TrimSpace(resolved.format))
	if formatError := output.ValidateFormat(resolved.format); formatError != nil {
		return renderOptions{}, formatError
	}
	return resolved, nil
}

// resolveRoot converts the optional root argument into an absolute directory.
func resolveRoot(arguments []string) (types.ValidatedPath, error) {
	rootArgument := defaultPath
	if len(arguments) > 0 {
		rootArgument = arguments[0]
	}
	absolutePath, absoluteError := filepath.Abs(rootArgument)
	if absoluteError != nil {
		return types.ValidatedPath{}, fmt.Errorf(errorRootPathFormat, rootArgument, absoluteError)
	}
	info, statError := os.Stat(absolutePath)
	if statError != nil {
		return types.ValidatedPath{}, fmt.Errorf(errorRootPathFormat, rootArgument, statError)
	}
	if !info.IsDir() {
		return types.ValidatedPath{}, fmt.Errorf(errorRootNotDirectory, absolutePath)
	}
	return types.ValidatedPath{AbsolutePath: absolutePath, IsDir: true}, nil
}

// newIgnoreSource combines ignore files, flags and persisted patterns for root.
// A missing or unreadable settings file only drops the persisted patterns.
func newIgnoreSource(logger *zap.Logger, options *globalOptions, root string, ignoreOptions config.IgnoreOptions) config.IgnoreSource {
	source := config.IgnoreSource{Root: root, Options: ignoreOptions, Logger: logger}
	store, storeError := options.openPatternStore()
	if storeError != nil {
		logger.Warn(logMessageSettingsError, zap.Error(storeError))
		return source
	}
	source.Persisted = store
	return source
}

func writeRendered(writer io.Writer, rendered string) error {
	_, writeError := io.WriteString(writer, rendered)
	return writeError
}
