package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/fnordcredit/fnordcredit/internal/cliconfig"
)

const longHelp = `
Keep a small credit ledger in a JSON file and serve it over HTTP.

The ledger lives in memory and is written back to <storage-prefix>.json
whenever it changes, checked once per maintenance interval. Timestamped
backups are written on their own schedule. Flags override FNORDCREDIT_*
environment variables, which override the config file.
`

var exampleUsage = strings.TrimSpace(`
  fnordcredit --storage-prefix /var/lib/fnordcredit/database
  fnordcredit --config $HOME/.fnordcredit/config.toml --log-format json
  fnordcredit snapshot --out /tmp/ledger.json
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// options are the flags that do not map onto cliconfig.Config.
type options struct {
	cfgPath string
	envFile string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fnordcredit:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := cliconfig.DefaultConfig()
	opts := &options{}

	root := &cobra.Command{
		Use:           "fnordcredit",
		Short:         "Credit ledger server backed by a JSON file",
		Long:          strings.TrimSpace(longHelp),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, &cfg, opts); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.cfgPath, "config", "", "path to config file (default: $HOME/.fnordcredit/config.toml)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading FNORDCREDIT_* variables")

	flags.StringVar(&cfg.StoragePrefix, "storage-prefix", cfg.StoragePrefix, "canonical file path without .json")
	flags.StringVar(&cfg.BackupPrefix, "backup-prefix", cfg.BackupPrefix, "prefix for timestamped backup files")
	flags.DurationVar(&cfg.MaintenanceInterval, "maintenance-interval", cfg.MaintenanceInterval, "load/save check interval (0 runs once)")
	flags.DurationVar(&cfg.BackupInterval, "backup-interval", cfg.BackupInterval, "backup interval (0 backs up once after load)")
	flags.StringVar(&cfg.DirtyPolicy, "dirty-policy", cfg.DirtyPolicy, "per-target or shared")
	flags.BoolVar(&cfg.FlushOnShutdown, "flush-on-shutdown", cfg.FlushOnShutdown, "write unsaved changes on shutdown")
	flags.BoolVar(&cfg.Watch, "watch", cfg.Watch, "load the ledger as soon as its file appears")

	flags.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP listen address")
	flags.StringVar(&cfg.StaticDir, "static-dir", cfg.StaticDir, "directory served at / (optional)")
	flags.Float64Var(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "requests per second per client IP (0 disables)")
	flags.IntVar(&cfg.RateBurst, "rate-burst", cfg.RateBurst, "rate limiter burst size")

	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "console or json")
	flags.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "also append logs to this file")

	root.AddCommand(newSnapshotCmd(&cfg, opts))
	return root
}

// loadConfig applies .env, file and environment values under the flags the
// user set explicitly, then validates.
func loadConfig(cmd *cobra.Command, cfg *cliconfig.Config, opts *options) error {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if err := cliconfig.LoadDotEnv(opts.envFile); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}

	cfgFile := opts.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}
	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	} else if opts.cfgPath != "" {
		return fmt.Errorf("config file %s not found", opts.cfgPath)
	}

	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}
	return cfg.Validate()
}
