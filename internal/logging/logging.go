// Package logging provides the engine's structured diagnostic log: a
// rotating JSON sink under the backlog directory (SPEC_FULL.md's ambient
// stack), independent of the domain logs (audit, truth, session) which
// are append-only JSONL event records rather than diagnostics.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the engine log's name under .workmesh/ at the backlog root.
const FileName = "engine.log"

// Options controls New.
type Options struct {
	// MaxSizeMB is the size in megabytes a log file reaches before it's
	// rotated. Defaults to 10.
	MaxSizeMB int
	// MaxBackups is the number of rotated files retained. Defaults to 3.
	MaxBackups int
	// MaxAgeDays is how long to retain old log files. Defaults to 28.
	MaxAgeDays int
	// Compress rotated backups with gzip.
	Compress bool
	// Level sets the minimum logged level. Defaults to slog.LevelInfo.
	Level slog.Leveler
}

func (o Options) withDefaults() Options {
	if o.MaxSizeMB <= 0 {
		o.MaxSizeMB = 10
	}
	if o.MaxBackups <= 0 {
		o.MaxBackups = 3
	}
	if o.MaxAgeDays <= 0 {
		o.MaxAgeDays = 28
	}
	if o.Level == nil {
		o.Level = slog.LevelInfo
	}
	return o
}

// Path returns the engine log's path under backlogDir/.workmesh.
func Path(backlogDir string) string {
	return filepath.Join(backlogDir, ".workmesh", FileName)
}

// New builds a JSON slog.Logger writing to a rotating file under
// backlogDir/.workmesh/engine.log, tagged with a "component" attribute.
func New(backlogDir, component string, opts Options) (*slog.Logger, io.Closer, error) {
	opts = opts.withDefaults()
	path := Path(backlogDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, nil, err
	}

	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}

	handler := slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: opts.Level})
	logger := slog.New(handler)
	if component != "" {
		logger = logger.With("component", component)
	}
	return logger, sink, nil
}
