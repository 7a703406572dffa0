package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:           "intreg",
	Short:         "intreg registers integrations and invokes them with scoped secrets.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setCommandExecutionContext(commandExecutionContext{
			CommandPath:       cmd.CommandPath(),
			UsesStructuredLog: commandUsesStructuredLogging(cmd),
		})
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd, listCmd, specsCmd, invokeCmd, migrateCmd, secretsCmd, hashTokenCmd)
}
