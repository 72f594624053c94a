package cliconfig

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fnordcredit/fnordcredit/pkg/log"
)

// NewLogger builds the process logger. With LogFile set, output also goes
// to that file, created along with its directory if needed. The returned
// close function releases the file.
func NewLogger(cfg Config) (*log.Zerolog, func() error, error) {
	var out io.Writer = os.Stderr
	closeFn := func() error { return nil }

	if cfg.LogFile != "" {
		if dir := filepath.Dir(cfg.LogFile); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closeFn = f.Close
	}

	logger, err := log.NewZerolog(log.ZerologConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Out:    out,
	})
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return logger, closeFn, nil
}
