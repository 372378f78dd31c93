package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how logs are written.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	File   string // optional rotated log file
}

// New builds the process logger. Logs always go to stdout; when File is set
// they are also written to a size-rotated file.
func New(opts Options) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if opts.Format != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return zerolog.Nop(), err
		}
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		})
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// GinLogger logs one line per request, skipping the given paths.
func GinLogger(logger zerolog.Logger, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if _, ok := skip[c.Request.URL.Path]; ok {
			return
		}

		status := c.Writer.Status()
		evt := logger.Info()
		switch {
		case status >= 500:
			evt = logger.Error()
		case status >= 400:
			evt = logger.Warn()
		}
		if len(c.Errors) > 0 {
			evt = evt.Str("errors", c.Errors.String())
		}
		evt.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}
