// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hyperledger-labs/orion-httpauth/config"
	"github.com/hyperledger-labs/orion-httpauth/pkg/server"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const version = "authd 0.1"

var (
	configPath string
	// PathEnv is an environment variable that can hold
	// the absolute path of the config directory
	pathEnv = "AUTHD_CONFIG_PATH"
)

func main() {
	cmd := authdCmd()

	// On failure Cobra prints the usage message and error string, so we only
	// need to exit with a non-0 status
	if cmd.Execute() != nil {
		os.Exit(1)
	}
}

func authdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authd",
		Short: "To start and interact with a signature authenticated todo server.",
	}
	cmd.AddCommand(versionCmd())
	cmd.AddCommand(startCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version of the todo server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("trailing arguments detected")
			}

			cmd.SilenceUsage = true
			cmd.Println(version)

			return nil
		},
	}

	return cmd
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Starts the todo server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("trailing arguments detected")
			}

			var path string
			switch {
			case configPath != "":
				path = configPath
			case os.Getenv(pathEnv) != "":
				path = os.Getenv(pathEnv)
			default:
				return errors.Errorf("neither --configpath nor %s path environment is set", pathEnv)
			}

			conf, err := config.Read(path)
			if err != nil {
				return err
			}

			cmd.SilenceUsage = true
			cmd.Println("Starting the todo server")
			srv, err := server.New(conf)
			if err != nil {
				return err
			}
			if err := srv.Start(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			cmd.Println("Stopping the todo server")
			return srv.Stop()
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "configpath", "", "set the absolute path of config directory")
	return cmd
}
