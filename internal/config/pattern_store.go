package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/temirov/ctxtree/internal/utils"
)

const (
	ignorePatternsKey  = "ignore_patterns"
	settingsConfigType = "json"
)

// DefaultIgnorePatterns seeds a settings file that does not exist yet.
var DefaultIgnorePatterns = []string{
	"node_modules/",
	".DS_Store",
	"*.pyc",
	"__pycache__/",
	".idea/",
	".vscode/",
}

// PatternStore persists the user-managed ignore pattern list in a JSON
// settings file.
type PatternStore struct {
	mutex    sync.Mutex
	path     string
	patterns []string
}

// DefaultPatternStorePath returns the settings file under the global
// configuration directory.
func DefaultPatternStorePath() (string, error) {
	configurationDirectory, err := globalConfigurationDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(configurationDirectory, utils.SettingsFileName), nil
}

// OpenPatternStore loads the settings file at path, creating it with
// DefaultIgnorePatterns when it is missing.
func OpenPatternStore(path string) (*PatternStore, error) {
	store := &PatternStore{path: path}
	if _, statErr := os.Stat(path); statErr != nil {
		if !os.IsNotExist(statErr) {
			return nil, fmt.Errorf("stat settings %s: %w", path, statErr)
		}
		store.patterns = append([]string(nil), DefaultIgnorePatterns...)
		if writeErr := store.write(); writeErr != nil {
			return nil, writeErr
		}
		return store, nil
	}

	reader := viper.New()
	reader.SetConfigFile(path)
	reader.SetConfigType(settingsConfigType)
	if readErr := reader.ReadInConfig(); readErr != nil {
		return nil, fmt.Errorf("read settings from %s: %w", path, readErr)
	}
	store.patterns = utils.DeduplicatePatterns(reader.GetStringSlice(ignorePatternsKey))
	return store, nil
}

// Path returns the settings file location.
func (store *PatternStore) Path() string {
	return store.path
}

// IgnorePatterns returns a copy of the persisted patterns.
func (store *PatternStore) IgnorePatterns() []string {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return append([]string(nil), store.patterns...)
}

// Add appends pattern and persists the list. It reports false when the
// pattern was already present or blank.
func (store *PatternStore) Add(pattern string) (bool, error) {
	trimmedPattern := strings.TrimSpace(pattern)
	if trimmedPattern == "" {
		return false, nil
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if utils.ContainsString(store.patterns, trimmedPattern) {
		return false, nil
	}
	store.patterns = append(store.patterns, trimmedPattern)
	return true, store.write()
}

// Remove deletes pattern and persists the list. It reports false when the
// pattern was not present.
func (store *PatternStore) Remove(pattern string) (bool, error) {
	trimmedPattern := strings.TrimSpace(pattern)
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if !utils.ContainsString(store.patterns, trimmedPattern) {
		return false, nil
	}
	store.patterns = utils.RemoveString(store.patterns, trimmedPattern)
	return true, store.write()
}

func (store *PatternStore) write() error {
	if err := os.MkdirAll(filepath.Dir(store.path), 0o755); err != nil {
		return fmt.Errorf("create settings directory for %s: %w", store.path, err)
	}
	writer := viper.New()
	writer.SetConfigType(settingsConfigType)
	writer.Set(ignorePatternsKey, store.patterns)
	if err := writer.WriteConfigAs(store.path); err != nil {
		return fmt.Errorf("write settings to %s: %w", store.path, err)
	}
	return nil
}
