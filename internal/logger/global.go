package logger

import (
	"fmt"
	"os"
	"sync"
)

var (
	defaultLogger     *Logger
	defaultLoggerInit sync.Once
	errDefaultLogger  error
)

// InitGlobal initializes the default global logger with the given configuration.
// Only the first call has an effect.
func InitGlobal(config Config) error {
	defaultLoggerInit.Do(func() {
		defaultLogger, errDefaultLogger = NewLogger(config)
	})
	return errDefaultLogger
}

// GetGlobal returns the default global logger, creating a console logger on first use
func GetGlobal() *Logger {
	defaultLoggerInit.Do(func() {
		defaultLogger, errDefaultLogger = NewLogger(DefaultConfig())
		if errDefaultLogger != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize default logger: %v\n", errDefaultLogger)
			os.Exit(1)
		}
	})
	if defaultLogger == nil {
		// InitGlobal failed; fall back to a console logger
		l, err := NewLogger(DefaultConfig())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize default logger: %v\n", err)
			os.Exit(1)
		}
		return l
	}
	return defaultLogger
}

// Named returns a named logger derived from the global logger
func Named(name string) *Logger {
	return GetGlobal().Named(name)
}
