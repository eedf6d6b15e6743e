package config

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogger points the global zerolog logger at stderr and, when LOG_FILE is
// set, at a rotating file as well.
func SetupLogger(c Config) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	if c.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(c.LogFile), 0o755); err != nil {
			log.Warn().Err(err).Str("file", c.LogFile).Msg("unable to create log directory")
		} else {
			out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
				Filename:   c.LogFile,
				MaxSize:    100, // MB
				MaxBackups: 3,
				MaxAge:     28, // days
				Compress:   true,
			})
		}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}
