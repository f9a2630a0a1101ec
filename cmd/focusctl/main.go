package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "focusctl",
		Short:         "Run a focus timer from the terminal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("state", "", "State file (default: <user config dir>/focustimer/state.yaml)")
	rootCmd.PersistentFlags().String("config", "", "Config file for timer defaults and reminders")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(controlCmd("pause", "Pause the running session", (*session).pause))
	rootCmd.AddCommand(controlCmd("stop", "Stop and reset to a fresh focus session", (*session).stop))
	rootCmd.AddCommand(controlCmd("skip", "Finish the current session now", (*session).skip))
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(watchCmd())
	return rootCmd
}
