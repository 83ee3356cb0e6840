package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	envFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "WhatsApp bulk message dispatcher",
	Long: `dispatcher sends one personalised WhatsApp message to every contact of a
spreadsheet, one at a time, through a single WhatsApp session.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "dispatcher version %s\n", version)
		if commit != "unknown" {
			fmt.Fprintf(out, "  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Fprintf(out, "  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "e", "", "load environment variables from this file before the process environment")

	rootCmd.AddCommand(sendCmd, serveCmd, previewCmd, checkCmd, versionCmd)
}
