package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/LopezGroup-ICIQ/cattools"
	"github.com/fatih/color"
)

// CLI configuration
type Config struct {
	ConfigFile    string
	StoreDir      string
	Driver        string
	DSN           string
	Keys          []string
	Collection    string
	Mode          string
	Role          string
	Form          string
	Target        float64
	Tolerance     *float64
	NodeType      string
	Where         string
	OtherKind     string
	PreserveOrder bool
	Timeout       time.Duration
	Verbose       bool
	JSON          bool
	Command       string
	Args          []string
}

func main() {
	config := parseFlags()
	if config.Command == "" {
		color.Red("Error: a command is required")
		flag.Usage()
		os.Exit(1)
	}

	settings, err := loadSettings(config)
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
	logger, err := settings.Logger()
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
	if config.Verbose {
		logger = cattools.NewLevelLogger(os.Stderr, slog.LevelDebug)
	}

	ctx := context.Background()
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	store, err := openStore(ctx, settings.Store)
	if err != nil {
		color.Red("Error: failed to open store: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	engines, err := settings.EngineRegistry()
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
	extractor, err := cattools.NewExtractor(cattools.ExtractorOptions{
		Store:   store,
		Engines: engines,
		Logger:  logger,
	})
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}

	a := &app{config: config, settings: settings, store: store, extractor: extractor}
	if err := a.run(ctx); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func parseFlags() *Config {
	config := &Config{}

	flag.StringVar(&config.ConfigFile, "config", "", "Path to a YAML configuration file")
	flag.StringVar(&config.ConfigFile, "c", "", "Path to a YAML configuration file (shorthand)")

	flag.StringVar(&config.StoreDir, "store", "", "Directory of a file store, or database file for -driver sqlite")
	flag.StringVar(&config.Driver, "driver", "", "Store driver: file, memory, sqlite or postgres")
	flag.StringVar(&config.DSN, "dsn", "", "Database connection string for -driver postgres")

	var keyFlags stringSlice
	flag.Var(&keyFlags, "key", "Record key (can be used multiple times)")
	flag.Var(&keyFlags, "k", "Record key (shorthand, can be used multiple times)")
	var keysFlag string
	flag.StringVar(&keysFlag, "keys", "", "Comma-separated record keys")

	flag.StringVar(&config.Collection, "collection", "", "Named collection for batch and import")
	flag.StringVar(&config.Mode, "mode", "change", "Batch mode: input, output or change")
	flag.StringVar(&config.Role, "role", "output", "Structure role: input or output")
	flag.StringVar(&config.Form, "form", "key", "Structure form: key or domain")
	flag.BoolVar(&config.PreserveOrder, "preserve-order", false, "Keep collection members in member order instead of creation order")

	flag.Float64Var(&config.Target, "target", 0, "Target energy for match")
	var tolerance float64
	flag.Float64Var(&tolerance, "tol", 0, "Energy tolerance for match, 0 for an exact match (default from config)")
	flag.StringVar(&config.NodeType, "type", "", "Record type for match, e.g. workchain")
	flag.StringVar(&config.Where, "where", "", "Selector expression for match, e.g. 'record.engine == \"RelaxEngineA\"'")
	flag.StringVar(&config.OtherKind, "other", "", "Other kind whose moment is reported by magnetization")

	flag.DurationVar(&config.Timeout, "timeout", 0, "Timeout (e.g., 30s, 5m)")
	flag.BoolVar(&config.Verbose, "verbose", false, "Enable debug logging")
	flag.BoolVar(&config.Verbose, "v", false, "Enable debug logging (shorthand)")
	flag.BoolVar(&config.JSON, "json", false, "Output results in JSON format")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `cattools - Extract results of computational chemistry executions

Usage: %s [options] <command> [keys or files...]

Examples:
  # Final energies of two records in a file store
  %s -store ./records energy rec_01h... rec_01j...

  # Structural changes of a collection, in creation order
  %s -store ./records -collection ceria -mode change batch

  # Records within 0.1 eV of a target energy
  %s -driver postgres -dsn postgres://localhost/aiida -type workchain -target -812.3 -tol 0.1 match

Options:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
		flag.PrintDefaults()

		fmt.Fprintf(os.Stderr, `
Commands:
  energy         - Final energy of each record
  structure      - Input or output structure of each record (-role, -form)
  change         - Input and output structures of each record (-form)
  magnetization  - Site moment statistics of each record (-other)
  batch          - Structures of a key list or collection (-mode, -form, -collection)
  match          - Keys of records near a target energy (-target, -tol, -type, -where)
  summary        - Headline results of each record
  engines        - Registered engines and where their structures live
  import         - Add record documents (JSON files) to the store (-collection)

`)
	}

	flag.Parse()

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "tol" {
			config.Tolerance = &tolerance
		}
	})
	config.Keys = append(config.Keys, keyFlags...)
	for _, key := range strings.Split(keysFlag, ",") {
		if key = strings.TrimSpace(key); key != "" {
			config.Keys = append(config.Keys, key)
		}
	}
	if flag.NArg() > 0 {
		config.Command = flag.Arg(0)
		config.Args = flag.Args()[1:]
	}
	return config
}

// Custom flag type for handling multiple key values
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// loadSettings reads the configuration file, if any, and applies the store
// flags on top of it.
func loadSettings(config *Config) (*cattools.Config, error) {
	settings := cattools.DefaultConfig()
	if config.ConfigFile != "" {
		var err error
		if settings, err = cattools.LoadConfigFile(config.ConfigFile); err != nil {
			return nil, err
		}
	}
	if config.Driver != "" {
		settings.Store.Driver = config.Driver
	}
	if config.StoreDir != "" {
		settings.Store.Path = config.StoreDir
	}
	if config.DSN != "" {
		settings.Store.DSN = config.DSN
	}
	if config.OtherKind != "" {
		settings.Magnetization.OtherKind = config.OtherKind
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func printJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
