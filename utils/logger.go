package utils

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// init initializes the global logger configuration when the package is imported.
func init() {
	//set log formatter to JSON with ISO 8601 timestamps
	log.SetFormatter(&log.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})

	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}

// SetLevel changes the global log level ("debug", "info", "warn", ...).
// Unknown names leave the level untouched and are reported.
func SetLevel(name string) {
	if name == "" {
		return
	}
	lvl, err := log.ParseLevel(name)
	if err != nil {
		Warn("unknown log level, keeping current", map[string]any{"level": name})
		return
	}
	log.SetLevel(lvl)
}

// Debug logs a message at debug level with optional fields
func Debug(message string, fields map[string]any) {
	log.WithFields(fields).Debug(message)
}

// Info logs a message at info level with optional fields
func Info(message string, fields map[string]any) {
	log.WithFields(fields).Info(message)
}

// Warn logs a message at warning level with optional fields
func Warn(message string, fields map[string]any) {
	log.WithFields(fields).Warn(message)
}

// Error logs a message at error level with optional fields
func Error(message string, fields map[string]any) {
	log.WithFields(fields).Error(message)
}

// Fatal logs a message at fatal level and exits the application
func Fatal(message string, fields map[string]any) {
	log.WithFields(fields).Fatal(message)
}
