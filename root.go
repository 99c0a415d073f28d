package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lanrat/zonediff/batch"
	"github.com/lanrat/zonediff/config"
	"github.com/lanrat/zonediff/logger"
	"github.com/lanrat/zonediff/save"
	"github.com/lanrat/zonediff/status"
)

// app holds the settings shared by every command of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
}

// Execute runs the command line with ctx.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	config.SetDefaults(a.v)

	rootCmd := &cobra.Command{
		Use:   "zonediff",
		Short: "Parse, query and diff DNS zone file snapshots",
		Long: `zonediff parses DNS master files (plain or gzip compressed) into indexed
snapshots, answers queries over them and computes record-level differences
between two snapshots of the same zone or between two directories of zones.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	f := rootCmd.PersistentFlags()
	f.StringVar(&a.cfgFile, "config", "", "YAML config file")
	f.String("origin", "", "origin of relative names (default is derived from the file name)")
	f.IntP("parallel", "p", runtime.NumCPU(), "number of files parsed at once")
	f.StringP("format", "f", config.FormatText, "output format: text, json or yaml")
	f.Bool("inherit-ttl", false, "reuse the last explicit TTL when no $TTL is set")
	f.Bool("sorted", false, "inputs are in canonical owner order, diff them as streams")
	f.Bool("fail-fast", false, "fail the run on the first file that can not be parsed")
	f.Float64("shift-threshold", 0.5, "warn when a record type count changes by more than this fraction")
	f.StringSlice("extensions", nil, "zone file extensions when scanning directories")
	f.Int("status-port", 0, "serve progress and metrics on this port (0 disables)")
	f.String("log-level", "info", "log level: trace, debug, info, warn, error")
	a.bind(f, map[string]string{
		"origin":          "origin",
		"parallel":        "parallel",
		"format":          "format",
		"inherit_ttl":     "inherit-ttl",
		"sorted":          "sorted",
		"fail_fast":       "fail-fast",
		"shift_threshold": "shift-threshold",
		"extensions":      "extensions",
		"status_port":     "status-port",
		"log.level":       "log-level",
	})

	rootCmd.AddCommand(
		newRecordsCmd(a),
		newNameServersCmd(a),
		newServedByCmd(a),
		newIPsCmd(a),
		newHistogramCmd(a),
		newTypesCmd(a),
		newDomainsCmd(a),
		newDNSKeysCmd(a),
		newExportCmd(a),
		newDiffCmd(a),
		newCompareDirsCmd(a),
	)
	return rootCmd
}

// bind binds each config key to its flag.
func (a *app) bind(f *pflag.FlagSet, keys map[string]string) {
	for key, flag := range keys {
		if err := a.v.BindPFlag(key, f.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

// setup loads the environment, the config file and the logger before any
// command runs.
func (a *app) setup(_ *cobra.Command, _ []string) error {
	// A missing .env file is fine, the environment can still be set in the shell.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	if a.cfgFile != "" {
		if err := config.ReadFile(a.v, a.cfgFile); err != nil {
			return err
		}
	}

	var err error
	if a.cfg, err = config.Load(a.v); err != nil {
		return err
	}
	if err := logger.Init(a.cfg.Log); err != nil {
		return errors.Wrap(err, "failed to init logger")
	}
	if a.cfgFile != "" {
		log.Debug().Str("file", a.v.ConfigFileUsed()).Msg("using config file")
	}
	return nil
}

// options returns the batch options of the loaded config.
func (a *app) options(tracker *status.Tracker) batch.Options {
	return batch.Options{
		Origin:     a.cfg.Origin,
		Parallel:   a.cfg.Parallel,
		InheritTTL: a.cfg.InheritTTL,
		Sorted:     a.cfg.Sorted,
		FailFast:   a.cfg.FailFast,
		Extensions: a.cfg.Extensions,
		Tracker:    tracker,
	}
}

// output writes a query result in the configured format.
func (a *app) output(cmd *cobra.Command, v any) error {
	return save.EncodeValue(cmd.OutOrStdout(), v, a.cfg.Format)
}
