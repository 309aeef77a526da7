package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup installs a console writer on the global logger. The level is
// info unless LOG_LEVEL names a valid zerolog level.
func Setup() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(level(os.Getenv("LOG_LEVEL")))
}

func level(name string) zerolog.Level {
	if name == "" {
		return zerolog.InfoLevel
	}
	parsed, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.InfoLevel
	}
	return parsed
}
