// Package config resolves the daemon's configuration from command-line
// flags, an optional YAML file, and defaults, in that precedence order.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ffind/ffind/internal/errors"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Config holds the resolved daemon configuration.
type Config struct {
	// Roots is the list of directory paths to index, as given on the
	// command line. Canonicalization and deduplication happen in
	// package roots, not here.
	Roots []string

	// Foreground disables daemonization when true.
	Foreground bool

	// DBPath enables persistence when non-empty.
	DBPath string
}

// looseBool accepts the original tool's boolean spellings
// (true/false/yes/no/1/0, case-insensitive) in the config file.
type looseBool bool

func (b *looseBool) UnmarshalYAML(value *yaml.Node) error {
	switch strings.ToLower(value.Value) {
	case "true", "yes", "1":
		*b = true
	case "false", "no", "0":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %q", value.Value)
	}
	return nil
}

// fileConfig mirrors the accepted keys of the YAML config file.
type fileConfig struct {
	Foreground *looseBool `yaml:"foreground"`
	DB         string     `yaml:"db"`
}

// Load resolves configuration from the given arguments (normally
// os.Args[1:]), the discovered config file, and defaults. warn receives
// one message per unknown config-file key; it may be nil.
func Load(args []string, warn func(string)) (*Config, error) {
	if warn == nil {
		warn = func(string) {}
	}

	fs := flag.NewFlagSet("ffindd", flag.ContinueOnError)
	foreground := fs.Bool("foreground", false, "do not detach from the controlling terminal")
	dbPath := fs.String("db", "", "enable persistence at PATH")
	showHelp := fs.Bool("help", false, "show usage and exit")
	showVersion := fs.Bool("version", false, "show version and exit")
	fs.BoolVar(showHelp, "h", false, "show usage and exit")
	fs.BoolVar(showVersion, "v", false, "show version and exit")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: ffindd [--foreground] [--db PATH] DIR [DIR...]\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfig, "parsing arguments")
	}

	if *showHelp {
		fs.Usage()
		os.Exit(0)
	}
	if *showVersion {
		fmt.Println("ffindd " + Version)
		os.Exit(0)
	}

	roots := fs.Args()
	if len(roots) == 0 {
		return nil, errors.Config("at least one directory argument is required")
	}

	cfg := &Config{Roots: roots}

	fc, err := loadFileConfig(warn)
	if err != nil {
		return nil, err
	}
	if fc != nil {
		if fc.Foreground != nil {
			cfg.Foreground = bool(*fc.Foreground)
		}
		cfg.DBPath = fc.DB
	}

	// Flags override the file; fs.Visit only reports flags actually
	// passed on the command line.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "foreground":
			cfg.Foreground = *foreground
		case "db":
			cfg.DBPath = *dbPath
		}
	})

	return cfg, nil
}

// loadFileConfig searches the discovery order from spec §6 and parses
// the first file found. A missing file at every location is not an
// error; a present-but-invalid one is.
func loadFileConfig(warn func(string)) (*fileConfig, error) {
	path := findConfigFile()
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path) //#nosec G304 -- path comes from a fixed discovery list, not user input
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeConfig, "reading config file %s", path)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, errors.CodeConfig, "parsing config file %s", path)
	}
	for key := range raw {
		if key != "foreground" && key != "db" {
			warn(fmt.Sprintf("%s: unknown config key %q ignored", path, key))
		}
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, errors.Wrapf(err, errors.CodeConfig, "parsing config file %s", path)
	}
	return &fc, nil
}

// findConfigFile returns the first existing path in the discovery
// order, or "" if none exists.
func findConfigFile() string {
	var candidates []string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "ffind", "config.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "ffind", "config.yaml"))
	}
	candidates = append(candidates, "/etc/ffind/config.yaml")

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}
