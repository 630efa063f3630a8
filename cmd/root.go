// Package cmd contains the kanglei command line interface.
//
// Design: Following the pattern used by kubectl, hugo, and other standard
// Go CLI tools, all application logic is contained in the cmd package,
// leaving main.go as a minimal entry point.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kanglei",
	Short: "Kanglei AI - multi-modal chat service",
	Long: `Kanglei AI is a Gemini-backed chat service with web search grounding,
image generation, and text-to-speech.

Run 'kanglei serve' to start the HTTP API server for the browser UI.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
