// Package config loads application configuration and assembles ignore patterns.
package config

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/temirov/ctxtree/internal/utils"
)

const (
	// gitDirectoryPattern represents the pattern that matches the Git directory.
	gitDirectoryPattern = utils.GitDirectoryName + "/"
	// binarySectionHeader identifies a section whose patterns do not exclude paths.
	binarySectionHeader = "[binary]"
	// ignoreSectionHeader identifies the section listing ignore patterns.
	ignoreSectionHeader = "[ignore]"
	// commentPrefix starts a comment line.
	commentPrefix = "#"

	errorLoadIgnoreFileFormat = "loading %s from %s: %w"
)

// IgnoreOptions selects the sources of ignore patterns for a root.
type IgnoreOptions struct {
	Exclude       []string
	UseGitignore  bool
	UseIgnoreFile bool
	IncludeGit    bool
}

// LoadIgnoreFilePatterns reads an ignore file and returns the patterns listed
// outside of [binary] sections. A missing file yields no patterns.
//
// #nosec G304
func LoadIgnoreFilePatterns(ignoreFilePath string) ([]string, error) {
	fileHandle, openFileError := os.Open(ignoreFilePath)
	if openFileError != nil {
		if os.IsNotExist(openFileError) {
			return nil, nil
		}
		return nil, openFileError
	}
	defer fileHandle.Close()

	var ignorePatterns []string
	currentSectionHeader := ignoreSectionHeader
	scanner := bufio.NewScanner(fileHandle)
	for scanner.Scan() {
		trimmedLine := strings.TrimSpace(scanner.Text())
		if trimmedLine == "" || strings.HasPrefix(trimmedLine, commentPrefix) {
			continue
		}
		if strings.EqualFold(trimmedLine, binarySectionHeader) {
			currentSectionHeader = binarySectionHeader
			continue
		}
		if strings.EqualFold(trimmedLine, ignoreSectionHeader) {
			currentSectionHeader = ignoreSectionHeader
			continue
		}
		if currentSectionHeader == ignoreSectionHeader {
			ignorePatterns = append(ignorePatterns, trimmedLine)
		}
	}
	if scanError := scanner.Err(); scanError != nil {
		return nil, scanError
	}
	return ignorePatterns, nil
}

// LoadRecursiveIgnorePatterns walks rootDirectoryPath and aggregates patterns from
// utils.IgnoreFileName and utils.GitIgnoreFileName files. Patterns found in a nested
// directory are prefixed with that directory's path relative to the root. The
// directory named utils.GitDirectoryName is excluded unless options.IncludeGit is
// set. options.Exclude patterns are appended to the result.
func LoadRecursiveIgnorePatterns(rootDirectoryPath string, options IgnoreOptions) ([]string, error) {
	var aggregatedPatterns []string

	walkFunction := func(currentDirectoryPath string, directoryEntry fs.DirEntry, walkError error) error {
		if walkError != nil {
			if currentDirectoryPath == rootDirectoryPath {
				return walkError
			}
			return nil
		}
		if !directoryEntry.IsDir() {
			return nil
		}
		if !options.IncludeGit && directoryEntry.Name() == utils.GitDirectoryName {
			return filepath.SkipDir
		}

		relativeDirectory := utils.RelativePathOrSelf(currentDirectoryPath, rootDirectoryPath)
		prefix := ""
		if relativeDirectory != "." {
			prefix = relativeDirectory + "/"
		}

		for _, fileName := range ignoreFileNames(options) {
			filePatterns, loadError := LoadIgnoreFilePatterns(filepath.Join(currentDirectoryPath, fileName))
			if loadError != nil {
				return fmt.Errorf(errorLoadIgnoreFileFormat, fileName, currentDirectoryPath, loadError)
			}
			for _, pattern := range filePatterns {
				aggregatedPatterns = append(aggregatedPatterns, prefix+pattern)
			}
		}
		return nil
	}

	if walkError := filepath.WalkDir(rootDirectoryPath, walkFunction); walkError != nil {
		return nil, walkError
	}

	if !options.IncludeGit {
		aggregatedPatterns = append(aggregatedPatterns, gitDirectoryPattern)
	}

	return appendExclusions(utils.DeduplicatePatterns(aggregatedPatterns), options.Exclude), nil
}

func ignoreFileNames(options IgnoreOptions) []string {
	var fileNames []string
	if options.UseIgnoreFile {
		fileNames = append(fileNames, utils.IgnoreFileName)
	}
	if options.UseGitignore {
		fileNames = append(fileNames, utils.GitIgnoreFileName)
	}
	return fileNames
}

func appendExclusions(patterns []string, exclusionPatterns []string) []string {
	for _, pattern := range exclusionPatterns {
		trimmedPattern := strings.TrimSpace(pattern)
		if trimmedPattern == "" {
			continue
		}
		if !utils.ContainsString(patterns, trimmedPattern) {
			patterns = append(patterns, trimmedPattern)
		}
	}
	return patterns
}
