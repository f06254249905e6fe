package app

import "github.com/rs/zerolog"

// Config holds runtime wiring options for building the app.
type Config struct {
	Home     string        // data directory, e.g. $HOME/.mlschat
	LogLevel zerolog.Level // zerolog.WarnLevel unless verbose
}
