package replaylog

import (
	"fmt"
	"os"
)

// Config describes how the replay server's logging should be initialised.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Each level enables
	// itself and every more severe level.
	Level string `json:"level"`
	// FilePath, if non-empty, additionally writes every log line to the
	// named file alongside stdout.
	FilePath string `json:"filePath,omitempty"`
}

func levelsFor(level string) Levels {
	switch level {
	case "debug":
		return Levels{Debug: true, Info: true, Warn: true, Error: true}
	case "warn":
		return Levels{Warn: true, Error: true}
	case "error":
		return Levels{Error: true}
	default:
		return Levels{Info: true, Warn: true, Error: true}
	}
}

// Setup wires every registered SubLogger's level and output from cfg. It
// must be called once during startup before any component logs.
func Setup(cfg Config) error {
	SetLevels(levelsFor(cfg.Level))

	if cfg.FilePath == "" {
		SetOutput(os.Stdout)
		return nil
	}

	f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("replaylog: opening log file %q: %w", cfg.FilePath, err)
	}
	mw, err := MultiWriter(os.Stdout, f)
	if err != nil {
		return fmt.Errorf("replaylog: building multiwriter: %w", err)
	}
	SetOutput(mw)
	return nil
}
