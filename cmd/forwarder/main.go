package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/devricklin/keyword-forwarder/internal/conf"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "forwarder",
		Short:         "Forward keyword matches from Feishu chats to one destination chat",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("env-file", "", "Load environment from this file instead of ./.env")
	flags.String("store-backend", "", "Fingerprint store: sqlite, pebble or redis")
	flags.String("store-path", "", "SQLite file or Pebble directory")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: console or json")
	flags.Bool("dry-run", false, "Log matches without forwarding or recording")
	flags.String("status-addr", "", "Serve the status API on this address, e.g. 127.0.0.1:9876")

	_ = viper.BindPFlag(conf.KeyStoreBackend, flags.Lookup("store-backend"))
	_ = viper.BindPFlag(conf.KeyStorePath, flags.Lookup("store-path"))
	_ = viper.BindPFlag(conf.KeyLogLevel, flags.Lookup("log-level"))
	_ = viper.BindPFlag(conf.KeyLogFormat, flags.Lookup("log-format"))
	_ = viper.BindPFlag(conf.KeyDryRun, flags.Lookup("dry-run"))
	_ = viper.BindPFlag(conf.KeyStatusAddr, flags.Lookup("status-addr"))

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newOnceCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newCheckCmd())

	return cmd
}

// loadConfig loads .env, then reads configuration from the environment
// and bound flags
func loadConfig(cmd *cobra.Command) (*conf.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if strings.TrimSpace(envFile) != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Failed to read .env: %v\n", err)
	}

	return conf.Load(viper.GetViper())
}
