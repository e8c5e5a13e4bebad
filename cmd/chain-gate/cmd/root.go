// Package cmd provides the CLI commands for Chain Gate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chain-gate/chaingate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "chain-gate",
	Short: "Chain Gate - interceptor dispatch engine",
	Long: `Chain Gate is an interceptor dispatch engine speaking JSON-RPC 2.0
over stdio.

Clients register request/response events against it; for each event the
engine resolves the applicable interceptors, runs validation interceptors
concurrently, threads the payload through mutation interceptors in priority
order, and launches observability interceptors detached from the request
lifecycle.

Quick start:
  1. Create a config file: chain-gate.yaml
  2. Run: chain-gate serve

Configuration:
  Config is loaded from chain-gate.yaml in the current directory,
  $HOME/.chain-gate/, or /etc/chain-gate/.

  Environment variables can override config values with the CHAIN_GATE_ prefix.
  Example: CHAIN_GATE_SERVER_ADMIN_ADDR=127.0.0.1:9999

Commands:
  serve       Start the stdio server
  check       Validate an interceptor definitions file
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./chain-gate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
