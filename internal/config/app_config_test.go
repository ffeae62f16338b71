package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/temirov/ctxtree/internal/utils"
)

func boolPointer(value bool) *bool {
	pointer := value
	return &pointer
}

// TestLoadApplicationConfigurationMergesSources verifies local settings override global ones.
func TestLoadApplicationConfigurationMergesSources(testingHandle *testing.T) {
	testCases := []struct {
		name            string
		globalContent   string
		localContent    string
		explicitPath    string
		expectFormat    string
		expectModel     string
		expectClipboard *bool
		expectDebounce  time.Duration
		expectExclude   []string
	}{
		{
			name:            "local overrides global",
			globalContent:   "tree:\n  format: json\n  clipboard: true\n  tokens:\n    model: gpt-4o\nwatch:\n  debounce: 2s\n",
			localContent:    "tree:\n  format: raw\n  paths:\n    exclude: [dist, dist]\nwatch:\n  debounce: 250ms\n",
			expectFormat:    "raw",
			expectModel:     "gpt-4o",
			expectClipboard: boolPointer(true),
			expectDebounce:  250 * time.Millisecond,
			expectExclude:   []string{"dist"},
		},
		{
			name:           "global only",
			globalContent:  "tree:\n  format: json\nwatch:\n  debounce: 1s\n",
			expectFormat:   "json",
			expectDebounce: time.Second,
		},
		{
			name:          "explicit path replaces local file",
			globalContent: "tree:\n  format: json\n",
			localContent:  "tree:\n  format: xml\n",
			explicitPath:  "custom.yaml",
			expectFormat:  "raw",
			expectModel:   "estimate",
		},
	}

	for _, testCase := range testCases {
		testingHandle.Run(testCase.name, func(subTest *testing.T) {
			homeDirectory := subTest.TempDir()
			subTest.Setenv("HOME", homeDirectory)
			subTest.Setenv("USERPROFILE", homeDirectory)
			workingDirectory := subTest.TempDir()

			if testCase.globalContent != "" {
				writeTestFile(subTest, filepath.Join(homeDirectory, utils.GlobalConfigDirectoryName, utils.ConfigFileName), testCase.globalContent)
			}
			if testCase.localContent != "" {
				writeTestFile(subTest, filepath.Join(workingDirectory, utils.LocalConfigFileName), testCase.localContent)
			}
			if testCase.explicitPath != "" {
				writeTestFile(subTest, filepath.Join(workingDirectory, testCase.explicitPath), "tree:\n  format: raw\n  tokens:\n    model: estimate\n")
			}

			configuration, loadError := LoadApplicationConfiguration(LoadOptions{WorkingDirectory: workingDirectory, ExplicitFilePath: testCase.explicitPath})
			if loadError != nil {
				subTest.Fatalf("LoadApplicationConfiguration failed: %v", loadError)
			}
			if configuration.Tree.Format != testCase.expectFormat {
				subTest.Fatalf("expected format %q, got %q", testCase.expectFormat, configuration.Tree.Format)
			}
			if configuration.Tree.Tokens.Model != testCase.expectModel {
				subTest.Fatalf("expected model %q, got %q", testCase.expectModel, configuration.Tree.Tokens.Model)
			}
			if (configuration.Tree.Clipboard == nil) != (testCase.expectClipboard == nil) {
				subTest.Fatalf("unexpected clipboard setting %v", configuration.Tree.Clipboard)
			}
			if testCase.expectClipboard != nil && *configuration.Tree.Clipboard != *testCase.expectClipboard {
				subTest.Fatalf("expected clipboard %v, got %v", *testCase.expectClipboard, *configuration.Tree.Clipboard)
			}
			if configuration.Watch.Debounce != testCase.expectDebounce {
				subTest.Fatalf("expected debounce %v, got %v", testCase.expectDebounce, configuration.Watch.Debounce)
			}
			if len(configuration.Tree.Paths.Exclude) != len(testCase.expectExclude) {
				subTest.Fatalf("expected exclusions %v, got %v", testCase.expectExclude, configuration.Tree.Paths.Exclude)
			}
		})
	}
}

// TestLoadApplicationConfigurationRejectsDirectory verifies a directory cannot be used as a configuration file.
func TestLoadApplicationConfigurationRejectsDirectory(testingHandle *testing.T) {
	homeDirectory := testingHandle.TempDir()
	testingHandle.Setenv("HOME", homeDirectory)
	testingHandle.Setenv("USERPROFILE", homeDirectory)
	workingDirectory := testingHandle.TempDir()

	_, loadError := LoadApplicationConfiguration(LoadOptions{WorkingDirectory: workingDirectory, ExplicitFilePath: "."})
	if loadError == nil {
		testingHandle.Fatalf("expected an error for a directory configuration path")
	}
}

// TestPathConfigurationIgnoreOptionsDefaults verifies unset switches resolve to defaults.
func TestPathConfigurationIgnoreOptionsDefaults(testingHandle *testing.T) {
	options := PathConfiguration{}.IgnoreOptions()
	if !options.UseGitignore || !options.UseIgnoreFile || options.IncludeGit {
		testingHandle.Fatalf("unexpected defaults: %+v", options)
	}
	overridden := PathConfiguration{UseGitignore: boolPointer(false), IncludeGit: boolPointer(true)}.IgnoreOptions()
	if overridden.UseGitignore || !overridden.IncludeGit {
		testingHandle.Fatalf("unexpected overrides: %+v", overridden)
	}
}

// TestMergeKeepsWatchWorkers verifies settings survive a merge with an empty override.
func TestMergeKeepsWatchWorkers(testingHandle *testing.T) {
	workers := 3
	base := ApplicationConfiguration{Watch: WatchConfiguration{DetailWorkers: &workers, MetricsAddress: ":9090"}}
	merged := base.Merge(ApplicationConfiguration{Watch: WatchConfiguration{LogFile: "ctxtree.log"}})
	if merged.Watch.DetailWorkers == nil || *merged.Watch.DetailWorkers != workers {
		testingHandle.Fatalf("expected detail workers to survive, got %v", merged.Watch.DetailWorkers)
	}
	if merged.Watch.MetricsAddress != ":9090" || merged.Watch.LogFile != "ctxtree.log" {
		testingHandle.Fatalf("unexpected merged watch configuration: %+v", merged.Watch)
	}
}
