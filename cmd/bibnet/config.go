package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/brunobiangulo/bibnet"
)

const envPrefix = "BIBNET"

// flagKeys maps command flags to config keys.
var flagKeys = map[string]string{
	"db":        "db_path",
	"mode":      "mode",
	"kind":      "entity_kind",
	"level":     "subject_level",
	"initials":  "initials_only",
	"width":     "window_width",
	"start":     "year_start",
	"end":       "year_end",
	"stat":      "statistics",
	"groups":    "groups_file",
	"detector":  "detector",
	"seed":      "seed",
	"workers":   "workers",
	"base":      "entropy_base",
	"years":     "years",
	"only":      "entity_filter",
	"subjects":  "subject_gate",
	"bound-min": "bounds_min",
	"bound-max": "bounds_max",
}

// loadConfig merges, lowest first: defaults, the YAML/JSON config file,
// BIBNET_* environment variables, and flags the user set.
func loadConfig(cmd *cobra.Command) (bibnet.Config, error) {
	cfg := bibnet.DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("entity_kind", cfg.EntityKind)
	v.SetDefault("subject_level", cfg.SubjectLevel)
	v.SetDefault("initials_only", cfg.InitialsOnly)
	v.SetDefault("years", []int{})
	v.SetDefault("entity_filter", []string{})
	v.SetDefault("subject_gate", []string{})
	v.SetDefault("window_width", cfg.WindowWidth)
	v.SetDefault("year_start", cfg.YearStart)
	v.SetDefault("year_end", cfg.YearEnd)
	v.SetDefault("bounds_min", cfg.BoundsMin)
	v.SetDefault("bounds_max", cfg.BoundsMax)
	v.SetDefault("statistics", []string{})
	v.SetDefault("groups_file", cfg.GroupsFile)
	v.SetDefault("detector", cfg.Detector)
	v.SetDefault("seed", cfg.Seed)
	v.SetDefault("workers", cfg.Workers)
	v.SetDefault("entropy_base", cfg.EntropyBase)

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key, f)
	})
	if bindErr != nil {
		return cfg, bindErr
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return cfg, cfg.Validate()
}

// setupLogging installs the default slog logger.
func setupLogging(w io.Writer, format, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("invalid log format %q (want text or json)", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// parseDelim accepts a single character or one of "semicolon", "tab",
// "comma".
func parseDelim(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "", "semicolon", ";":
		return ';', nil
	case "tab", `\t`, "\t":
		return '\t', nil
	case "comma", ",":
		return ',', nil
	}
	r := []rune(s)
	if len(r) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	return r[0], nil
}
