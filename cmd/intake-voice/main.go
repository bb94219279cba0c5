package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	intake "github.com/agentplexus/omnivoice-intake"
	"github.com/agentplexus/omnivoice-intake/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:          "intake-voice",
	Short:        "Maintenance intake voice service",
	Version:      intake.Version,
	SilenceUsage: true,
	Long: `intake-voice answers inbound maintenance calls, streams caller audio to
live transcription and either runs the intake questionnaire or answers
questions from the property's FAQ.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("verbose") {
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error getting verbose flag: %v\n", err)
				return
			}
			logger.SetVerbose(verbose)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
