// File: cmd/app/main.go
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = ""
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "docchat",
	Short:        "Chat relay with document and image references",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("docchat %s %s\n", version, commit)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, versionCmd)
}
