package utils

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime/debug"
	"strings"
)

const (
	unknownVersion         = "unknown"
	develVersion           = "(devel)"
	revisionSettingKey     = "vcs.revision"
	modifiedSettingKey     = "vcs.modified"
	shortRevisionLength    = 12
	dirtyRevisionSuffix    = "-dirty"
	errorGitNotFoundFormat = ".git directory not found in or above %s"
)

var gitDescribeArguments = [][]string{
	{"describe", "--tags", "--exact-match"},
	{"describe", "--tags", "--long", "--dirty"},
}

// GetApplicationVersion reports the module version stamped into the binary.
// Development builds fall back to the VCS revision recorded by the Go
// toolchain, then to git describe in the enclosing repository.
func GetApplicationVersion() string {
	buildInfo, buildInfoAvailable := debug.ReadBuildInfo()
	if buildInfoAvailable {
		if version := versionFromBuildInfo(buildInfo); version != "" {
			return version
		}
	}
	if version := versionFromGit("."); version != "" {
		return version
	}
	return unknownVersion
}

func versionFromBuildInfo(buildInfo *debug.BuildInfo) string {
	if buildInfo.Main.Version != "" && buildInfo.Main.Version != develVersion {
		return buildInfo.Main.Version
	}
	var revision string
	var modified bool
	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case revisionSettingKey:
			revision = setting.Value
		case modifiedSettingKey:
			modified = setting.Value == "true"
		}
	}
	if revision == "" {
		return ""
	}
	if len(revision) > shortRevisionLength {
		revision = revision[:shortRevisionLength]
	}
	if modified {
		revision += dirtyRevisionSuffix
	}
	return revision
}

func versionFromGit(startDirectory string) string {
	repositoryDirectory, findError := findGitDirectory(startDirectory)
	if findError != nil {
		return ""
	}
	for _, arguments := range gitDescribeArguments {
		// #nosec G204
		describeCommand := exec.Command("git", arguments...)
		describeCommand.Dir = repositoryDirectory
		describeOutput, describeError := describeCommand.Output()
		if describeError == nil && len(describeOutput) > 0 {
			return strings.TrimSpace(string(describeOutput))
		}
	}
	return ""
}

// findGitDirectory returns the closest directory at or above startDirectory
// that contains a .git directory.
func findGitDirectory(startDirectory string) (string, error) {
	absoluteStartDirectory, absoluteError := filepath.Abs(startDirectory)
	if absoluteError != nil {
		return "", fmt.Errorf("failed to get absolute path for %s: %w", startDirectory, absoluteError)
	}
	for currentDirectory := absoluteStartDirectory; ; {
		if info, statError := os.Stat(filepath.Join(currentDirectory, GitDirectoryName)); statError == nil && info.IsDir() {
			return currentDirectory, nil
		}
		parentDirectory := filepath.Dir(currentDirectory)
		if parentDirectory == currentDirectory {
			return "", fmt.Errorf(errorGitNotFoundFormat, absoluteStartDirectory)
		}
		currentDirectory = parentDirectory
	}
}
