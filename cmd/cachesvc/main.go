package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath  string
	backendName string
	durablePath string
	redisAddr   string
	redisPass   string
	redisDB     int
	sessionID   string
	pgDSN       string
	logLevel    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "cachesvc",
		Short:         "cachesvc - tag-aware expiring cache",
		Long:          "A key/value cache with expiration and tag groups over memory, Redis, bbolt or Postgres storage",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "Primary backend: durable, session, memory, postgres")
	rootCmd.PersistentFlags().StringVar(&durablePath, "path", "", "bbolt file for the durable backend")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Redis address for the session backend")
	rootCmd.PersistentFlags().StringVar(&redisPass, "redis-pass", "", "Redis password")
	rootCmd.PersistentFlags().IntVar(&redisDB, "redis-db", -1, "Redis database")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "Session ID for the session backend")
	rootCmd.PersistentFlags().StringVar(&pgDSN, "postgres-dsn", "", "Postgres DSN for the postgres backend")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		setCmd(),
		getCmd(),
		existsCmd(),
		ttlCmd(),
		rmCmd(),
		clearCmd(),
		keysCmd(),
		purgeCmd(),
		tagCmd(),
		serveCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
