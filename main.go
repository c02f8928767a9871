package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"LIBRA-backend/internal/platform/config"
)

var Version = "dev"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "libra",
		Short:         "LIBRA - library rental backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		// サブコマンド無しなら serve
		RunE: runServe,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(usersCmd())
	rootCmd.AddCommand(booksCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
