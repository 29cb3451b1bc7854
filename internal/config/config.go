/*
Package config resolves the run settings of goAuthScythe.

Sources, lowest priority first: built-in defaults, an optional YAML file
(--config), environment variables, then command line flags.
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultThreshold = 5
	defaultTop       = 10
	defaultLogLevel  = "info"
)

var (
	ErrUsage         = errors.New("usage error")
	ErrInvalidConfig = errors.New("invalid configuration")
)

type Config struct {
	LogPath     string `yaml:"-"`
	Threshold   int    `yaml:"threshold"`
	Top         int    `yaml:"top"`
	CSVPath     string `yaml:"csv"`
	MetricsPath string `yaml:"metrics"`
	Pattern     string `yaml:"pattern"`
	LogLevel    string `yaml:"log_level"`
	ConfigPath  string `yaml:"-"`
	ShowVersion bool   `yaml:"-"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		Threshold: defaultThreshold,
		Top:       defaultTop,
		LogLevel:  defaultLogLevel,
	}
}

// Load builds the Config for a run from args (without the program name).
// Usage output and flag errors are written to output.
func Load(args []string, output io.Writer) (Config, error) {
	fs := flag.NewFlagSet("goAuthScythe", flag.ContinueOnError)
	fs.SetOutput(output)
	var (
		threshold   = fs.Int("threshold", defaultThreshold, "minimum failed attempts for an address to be flagged suspicious")
		top         = fs.Int("top", defaultTop, "number of rows shown per table (0 shows all)")
		csvPath     = fs.String("csv", "", "write the full report as CSV to this path")
		metricsPath = fs.String("metrics", "", "write Prometheus textfile metrics to this path")
		pattern     = fs.String("pattern", "", "override regex, must define (?P<user>...) and (?P<ip>...)")
		logLevel    = fs.String("log-level", defaultLogLevel, "diagnostics level: debug, info, warn, error")
		configPath  = fs.String("config", "", "optional YAML configuration file")
		showVersion = fs.Bool("version", false, "print version and exit")
	)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: goAuthScythe <logfile> [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return Config{}, err
		}
		return Config{}, fmt.Errorf("%w: %w", ErrUsage, err)
	}

	cfg := Defaults()
	cfg.ConfigPath = *configPath
	cfg.ShowVersion = *showVersion
	if cfg.ShowVersion {
		return cfg, nil
	}

	switch len(positional) {
	case 0:
		fs.Usage()
		return Config{}, fmt.Errorf("%w: missing log file path", ErrUsage)
	case 1:
		cfg.LogPath = positional[0]
	default:
		fs.Usage()
		return Config{}, fmt.Errorf("%w: expected one log file, got %d arguments", ErrUsage, len(positional))
	}

	if cfg.ConfigPath != "" {
		if err := LoadFile(cfg.ConfigPath, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "threshold":
			cfg.Threshold = *threshold
		case "top":
			cfg.Top = *top
		case "csv":
			cfg.CSVPath = *csvPath
		case "metrics":
			cfg.MetricsPath = *metricsPath
		case "pattern":
			cfg.Pattern = *pattern
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parseInterspersed lets flags appear before and after positional arguments.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		rest := fs.Args()
		// flag stops at "--": everything after it is positional
		if len(args) > len(rest) && args[len(args)-len(rest)-1] == "--" {
			return append(positional, rest...), nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

// LoadFile overlays the YAML file at path onto cfg. Unknown keys are rejected.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var err error
	if cfg.Threshold, err = getEnvInt("THRESHOLD", cfg.Threshold); err != nil {
		return err
	}
	if cfg.Top, err = getEnvInt("TOP_N", cfg.Top); err != nil {
		return err
	}
	cfg.CSVPath = getEnv("CSV_PATH", cfg.CSVPath)
	cfg.MetricsPath = getEnv("METRICS_PATH", cfg.MetricsPath)
	cfg.Pattern = getEnv("REGEX_OVERRIDE", cfg.Pattern)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	return nil
}

// Validate checks value ranges. Any threshold is accepted: at 0 or below every
// counted address is suspicious.
func (c Config) Validate() error {
	if c.Top < 0 {
		return fmt.Errorf("%w: top must not be negative, got %d", ErrInvalidConfig, c.Top)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLogLevel maps a level name to its slog.Level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, level)
	}
}

// --- Environment Variable Helpers ---

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		// Strip surrounding quotes if present (common in .env files)
		if len(val) >= 2 && ((val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'')) {
			return val[1 : len(val)-1]
		}
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, s)
	}
	return i, nil
}
