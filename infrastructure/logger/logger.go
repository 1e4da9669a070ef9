package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
)

var logger = log.New()

func init() {
	logger.Formatter = &log.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
	}
	logger.Out = os.Stdout
	logger.SetLevel(log.DebugLevel)
	if lvl, err := log.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}

	// Stdout suits systemd and docker; LOG_TO_FILE=true writes logs/<date><env>.log instead.
	if os.Getenv("LOG_TO_FILE") != "true" {
		return
	}
	cwd, err := os.Getwd()
	if err != nil {
		log.Warnf("Failed get current working directory: %v, logging to stdout", err)
		return
	}
	logsDir := filepath.Join(cwd, "logs")
	if mkErr := os.MkdirAll(logsDir, 0o755); mkErr != nil {
		log.Warnf("Failed to create logs directory %s: %v, falling back to stdout", logsDir, mkErr)
		return
	}
	filePath := filepath.Join(logsDir, fmt.Sprintf("%s%s.log", time.Now().Format("2006-01-02"), os.Getenv("ENV")))
	f, openErr := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if openErr != nil {
		log.Warnf("Failed to open log file %s: %v, falling back to stdout", filePath, openErr)
		return
	}
	logger.Out = f
}

// SetOutput redirects all log output; tests use it to silence or capture logs.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// GetLogger returns an entry annotated with the calling function, file and line.
func GetLogger() *log.Entry {
	function, file, line, _ := runtime.Caller(1)

	name := ""
	if functionObject := runtime.FuncForPC(function); functionObject != nil {
		name = functionObject.Name()
	}
	return logger.WithFields(log.Fields{
		"function": name,
		"file":     file,
		"line":     line,
	})
}

func SetLevel(level log.Level) {
	logger.SetLevel(level)
}
