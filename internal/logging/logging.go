// Package logging builds the *log.Logger values used across livedoc.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/steveyegge/livedoc/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Output is a log destination shared by every component logger.
type Output struct {
	w      io.Writer
	closer io.Closer
	once   sync.Once
}

// Open returns stderr, or a rotating file when cfg.File is set.
func Open(cfg config.LogConfig) (*Output, error) {
	if cfg.File == "" {
		return &Output{w: os.Stderr}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	return &Output{w: rotator, closer: rotator}, nil
}

// Logger returns a logger writing to o with the given component name as
// its prefix, e.g. "server" becomes "[server] ".
func (o *Output) Logger(component string) *log.Logger {
	prefix := ""
	if component != "" {
		prefix = "[" + component + "] "
	}
	return log.New(o.w, prefix, log.LstdFlags)
}

// Writer exposes the underlying destination.
func (o *Output) Writer() io.Writer {
	return o.w
}

// Close releases the log file, if any. Safe to call more than once.
func (o *Output) Close() error {
	var err error
	o.once.Do(func() {
		if o.closer != nil {
			err = o.closer.Close()
		}
	})
	return err
}
