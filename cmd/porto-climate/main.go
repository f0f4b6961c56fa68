package main

import (
	"fmt"
	"log/slog"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/1F47E/porto-climate-map/pkg/logger"
	"github.com/1F47E/porto-climate-map/pkg/settings"
)

var (
	envName      string
	userSettings string
	logLevel     string
	logFormat    string
)

var rootCmd = &cobra.Command{
	Use:   "porto-climate",
	Short: "Environmental sensor and green-zone map for Porto",
	Long: `Serves a map of live sensor readings, a temperature heat layer and the
city's green zones. The base configuration is chosen by --env (or APP_ENV)
and can be overridden by a user settings file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envName, "env", "e", "", "Environment, exactly DEV, INT or PROD (default from APP_ENV)")
	rootCmd.PersistentFlags().StringVarP(&userSettings, "user-settings", "u", "settings.user.yaml", "User settings override file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto", "Log format: auto, text, json")

	rootCmd.AddCommand(serveCmd, snapshotCmd, settingsCmd, benchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap sets up logging and resolves the settings shared by every command.
func bootstrap() (*settings.Settings, *slog.Logger, error) {
	log := logger.Setup(logLevel, logFormat)

	env := settings.EnvFromEnvironment()
	if envName != "" {
		env = settings.ParseEnv(envName)
	}
	cfg, err := settings.Load(env, userSettings)
	if err != nil {
		return nil, nil, fmt.Errorf("load settings: %w", err)
	}
	log.Info("settings_resolved", "env", cfg.Env, "user_settings", userSettings)
	return cfg, log, nil
}
