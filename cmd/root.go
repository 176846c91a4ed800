package cmd

import (
	"fmt"
	"log"
	"os"

	"demixer/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "demixer",
	Short: "Demixer is a stem separation studio service.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting Demixer server...")
		// server.Start handles its own port and logging for startup.
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
