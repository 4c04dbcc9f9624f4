package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "viabot",
	Short: "WhatsApp assistant for bank-bill second copies",
	Long: `viabot serves the conversational assistant that delivers second copies
of bank bills over WhatsApp, aggregating open titles from Sicoob and
Bradesco.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the viabot version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("viabot version %s\n", version)
	},
}

func main() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
