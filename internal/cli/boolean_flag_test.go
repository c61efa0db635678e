package cli

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestRegisterBooleanFlagParsesValues(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name               string
		defaultValue       bool
		arguments          []string
		expected           bool
		expectedPositional []string
		expectError        bool
	}{
		{name: "defaults_apply", defaultValue: true, arguments: []string{}, expected: true},
		{name: "bare_flag_sets_true", arguments: []string{"--tokens"}, expected: true},
		{name: "shorthand_sets_true", arguments: []string{"-k"}, expected: true},
		{name: "equals_false", defaultValue: true, arguments: []string{"--tokens=false"}, expected: false},
		{name: "trailing_no_literal", defaultValue: true, arguments: []string{"--tokens", "no"}, expected: false},
		{name: "trailing_on_literal", arguments: []string{"--tokens", "on"}, expected: true},
		{
			name:               "path_after_flag_stays_positional",
			arguments:          []string{"--tokens", "src"},
			expected:           true,
			expectedPositional: []string{"src"},
		},
		{name: "invalid_literal", arguments: []string{"--tokens=maybe"}, expectError: true},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			command := &cobra.Command{Use: "boolean-test"}
			flagValue := !testCase.defaultValue
			registerBooleanFlag(command.Flags(), &flagValue, "tokens", "k", testCase.defaultValue, "count tokens")
			parseErr := command.ParseFlags(normalizeBooleanFlagArguments(command, testCase.arguments))
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
			positional := command.Flags().Args()
			if len(positional) != len(testCase.expectedPositional) {
				t.Fatalf("expected positional %v, got %v", testCase.expectedPositional, positional)
			}
		})
	}
}

func TestNormalizeBooleanFlagArgumentsStopsAtTerminator(t *testing.T) {
	command := &cobra.Command{Use: "boolean-test"}
	var enabled bool
	registerBooleanFlag(command.Flags(), &enabled, "tokens", "", false, "count tokens")
	normalized := normalizeBooleanFlagArguments(command, []string{"--tokens", "yes", "--", "--tokens", "no"})
	expected := []string{"--tokens=yes", "--", "--tokens", "no"}
	if len(normalized) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, normalized)
	}
	for index := range expected {
		if normalized[index] != expected[index] {
			t.Fatalf("expected %v, got %v", expected, normalized)
		}
	}
}
