package cli

import (
	"reflect"
	"testing"

	"github.com/spf13/cobra"
)

func TestRegisterToggleFlagParsesValues(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		defaultValue bool
		arguments    []string
		expected     bool
		expectError  bool
	}{
		{name: "keeps_default", defaultValue: true, arguments: []string{}, expected: true},
		{name: "bare_flag_sets_true", arguments: []string{"--feature"}, expected: true},
		{name: "equals_false", defaultValue: true, arguments: []string{"--feature=false"}, expected: false},
		{name: "separate_no_literal", defaultValue: true, arguments: []string{"--feature", "no"}, expected: false},
		{name: "separate_on_literal", arguments: []string{"--feature", "on"}, expected: true},
		{name: "unknown_literal_is_positional", arguments: []string{"--feature", "maybe"}, expected: true},
		{name: "invalid_equals_value", arguments: []string{"--feature=maybe"}, expectError: true},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			command := &cobra.Command{Use: "toggle-test"}
			var flagValue bool
			registerToggleFlag(command.Flags(), &flagValue, "feature", testCase.defaultValue, "toggle feature behaviour")
			parseErr := command.ParseFlags(normalizeToggleArguments(command, testCase.arguments))
			if testCase.expectError {
				if parseErr == nil {
					t.Fatalf("expected parse error for arguments %v", testCase.arguments)
				}
				return
			}
			if parseErr != nil {
				t.Fatalf("unexpected parse error: %v", parseErr)
			}
			if flagValue != testCase.expected {
				t.Fatalf("expected %t, got %t", testCase.expected, flagValue)
			}
		})
	}
}

func TestNormalizeToggleArgumentsSeesSubcommandFlags(t *testing.T) {
	root := &cobra.Command{Use: "root"}
	child := &cobra.Command{Use: "child", Run: func(*cobra.Command, []string) {}}
	var copyEnabled bool
	registerToggleFlag(child.Flags(), &copyEnabled, "copy", false, "copy")
	root.AddCommand(child)

	normalized := normalizeToggleArguments(root, []string{"child", "--copy", "yes", "--", "--copy", "no"})
	expected := []string{"child", "--copy=yes", "--", "--copy", "no"}
	if !reflect.DeepEqual(normalized, expected) {
		t.Fatalf("expected %v, got %v", expected, normalized)
	}
}
