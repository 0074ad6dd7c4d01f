// Command rolebridge grants and revokes Discord roles from Stripe subscription events.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	envFile   string
	logFormat string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "rolebridge",
		Short:         "Sync Discord roles with Stripe subscriptions",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "json", "log output format (json, console)")

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(ledgerCmd(opts))
	return rootCmd
}
