package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
	version = "dev" // Will be set by build flags
)

var rootCmd = &cobra.Command{
	Use:   "telesim",
	Short: "Synthetic telecom-incident generator and repair simulator",
	Long: `Telesim continuously produces geographically distributed incident records
at a configured rate, persists them to MongoDB, and optionally schedules
realistic, delayed repair records referencing a subset of those incidents.

The serve command exposes the HTTP control surface (start/stop/status).`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(catalogCmd)
}

// Commands are defined in separate files:
// - serveCmd in serve.go
// - catalogCmd in catalog.go

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
