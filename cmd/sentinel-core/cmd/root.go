// Package cmd provides the CLI commands for sentinel-core.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentinelcore/sentinelcore/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sentinel-core",
	Short: "A transparent security sentinel for MCP tool calls",
	Long: `sentinel-core sits between an AI agent and a downstream MCP tool
server, intercepting every tool call and deciding -- per request -- whether
to allow, deny, defer (ask), or silently log it, against a hash-chained
audit trail that can later be verified for tamper evidence.

Quick start:
  1. Create a config file: sentinel-core.yaml
  2. Run: sentinel-core start -- <downstream-command> [args...]

Configuration:
  Config is loaded from sentinel-core.yaml in the current directory,
  $HOME/.sentinel-core/, or /etc/sentinel-core/.

  Environment variables can override config values with the SENTINEL_CORE_
  prefix. Example: SENTINEL_CORE_MODE=lockdown

Commands:
  start       Start the sentinel, spawning the downstream tool server
  verify      Verify the audit log's hash chain
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./sentinel-core.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
