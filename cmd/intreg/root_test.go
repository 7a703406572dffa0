package main

import "testing"

func TestRootCommand_RegistersCommands(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{
		{"serve"}, {"list"}, {"specs"}, {"invoke"}, {"migrate"}, {"hash-token"},
		{"secrets", "set"}, {"secrets", "delete"}, {"secrets", "list"},
	} {
		cmd, _, err := rootCmd.Find(args)
		if err != nil || cmd == nil || cmd.Name() != args[len(args)-1] {
			t.Fatalf("command %v not registered: cmd=%v err=%v", args, cmd, err)
		}
	}
}

func TestCommandUsesStructuredLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want bool
	}{
		{name: "serve", args: []string{"serve"}, want: true},
		{name: "migrate", args: []string{"migrate"}, want: true},
		{name: "list", args: []string{"list"}, want: false},
		{name: "specs", args: []string{"specs"}, want: false},
		{name: "invoke", args: []string{"invoke"}, want: false},
		{name: "secrets set", args: []string{"secrets", "set"}, want: false},
		{name: "hash-token", args: []string{"hash-token"}, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cmd, _, err := rootCmd.Find(tc.args)
			if err != nil {
				t.Fatalf("Find(%v) error = %v", tc.args, err)
			}
			if cmd == nil {
				t.Fatalf("Find(%v) returned nil command", tc.args)
			}

			if got := commandUsesStructuredLogging(cmd); got != tc.want {
				t.Fatalf("commandUsesStructuredLogging(%q) = %v, want %v", cmd.CommandPath(), got, tc.want)
			}
		})
	}
}
