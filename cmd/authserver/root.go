// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/adimalka14/auth-server-jwt/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the auth server CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authserver",
		Short: "JWT authentication server",
		Long: `authserver registers users, verifies passwords and issues
short-lived access tokens plus long-lived refresh tokens.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig merges the config file, environment and flags seen by cmd.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	return config.Load(cmd.Flags(), configFile)
}
