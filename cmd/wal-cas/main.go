// Command wal-cas is the operator CLI for the storage core: it drives the
// Write-Ahead Log, the backend Health Monitor, the Daemon Supervisor, the
// Columnar Bridge, and the VFS Facade from a single binary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/wal-cas/internal/config"
	"github.com/cuemby/wal-cas/internal/obslog"
)

// Version is set at build time via -ldflags.
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

var cfgFile string
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "wal-cas",
	Short: "wal-cas - content-addressed multi-backend storage core",
	Long: `wal-cas drives a Write-Ahead Log backed storage core across
heterogeneous content-addressed backends (IPFS, S3, Storacha, Filecoin,
local disk), with backend health tracking, a columnar dataset bridge, a
read-only virtual filesystem over stored datasets, and a supervised local
daemon.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"wal-cas version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a YAML config file (defaults applied if absent)")

	cobra.OnInitialize(initLogging, initConfig)

	rootCmd.AddCommand(walCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(columnarCmd)
	rootCmd.AddCommand(vfsCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	obslog.Init(obslog.Config{
		Level:      obslog.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func initConfig() {
	if cfgFile == "" {
		cfg = config.DefaultConfig()
		return
	}
	loaded, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	cfg = loaded
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
