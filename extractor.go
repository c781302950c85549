package cattools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/LopezGroup-ICIQ/cattools/script"
)

// ExtractorOptions configures a new Extractor.
type ExtractorOptions struct {
	// Store is the provenance store records are read from. Required.
	Store Store

	// Engines is the dispatch table. Defaults to DefaultEngines().
	Engines *Engines

	// Logger receives the warnings raised while degrading to sentinel
	// values. Defaults to a discard logger.
	Logger *slog.Logger

	// ScriptCompiler compiles the selector expressions of MatchOptions.Where.
	// Defaults to a Risor engine with the record globals.
	ScriptCompiler script.Compiler
}

// Extractor reads and normalizes execution results. It holds no mutable
// state and may be shared by goroutines working on independent keys.
type Extractor struct {
	store    Store
	engines  *Engines
	logger   *slog.Logger
	compiler script.Compiler
}

// NewExtractor creates a new Extractor
func NewExtractor(opts ExtractorOptions) (*Extractor, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Engines == nil {
		opts.Engines = DefaultEngines()
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	if opts.ScriptCompiler == nil {
		opts.ScriptCompiler = script.NewRisorCompiler(script.DefaultRisorGlobals())
	}
	return &Extractor{
		store:    opts.Store,
		engines:  opts.Engines,
		logger:   opts.Logger,
		compiler: opts.ScriptCompiler,
	}, nil
}

// Engines returns the extractor's dispatch table.
func (e *Extractor) Engines() *Engines {
	return e.engines
}

// Load resolves a key to its execution record.
func (e *Extractor) Load(ctx context.Context, key string) (*ExecutionRecord, error) {
	if key == NoRecord {
		return nil, NotFoundError(key)
	}
	record, err := e.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// log returns the logger for ctx scoped to a record key.
func (e *Extractor) log(ctx context.Context, key string) *slog.Logger {
	logger := e.logger
	if l, ok := GetLoggerFromContext(ctx); ok {
		logger = l
	}
	if key == NoRecord {
		return logger
	}
	return logger.With("key", key)
}
