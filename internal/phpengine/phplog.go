package phpengine

import (
	"context"
	"log/slog"
	"sync"
)

// Syslog priorities accepted by logPHPMessage.
const (
	logEmerg   = 0
	logAlert   = 1
	logCrit    = 2
	logErr     = 3
	logWarning = 4
	logNotice  = 5
	logInfo    = 6
	logDebug   = 7
)

var (
	nextThreadID int32
	threadIDMu   sync.Mutex

	phpLogger   *slog.Logger
	phpLoggerMu sync.RWMutex
)

// getThreadID returns a unique id for a new engine.
func getThreadID() int32 {
	threadIDMu.Lock()
	defer threadIDMu.Unlock()
	nextThreadID++
	return nextThreadID
}

// SetLogger sets logger for messages logged from PHP code.
func SetLogger(logger *slog.Logger) {
	phpLoggerMu.Lock()
	phpLogger = logger
	phpLoggerMu.Unlock()
}

func getLogger() *slog.Logger {
	phpLoggerMu.RLock()
	defer phpLoggerMu.RUnlock()
	return phpLogger
}

func logPHPMessage(msgType int, message string, threadID int32) {
	logger := getLogger()
	if logger == nil {
		return
	}

	level := slog.LevelInfo
	switch msgType {
	case logEmerg, logAlert, logCrit, logErr:
		level = slog.LevelError
	case logWarning:
		level = slog.LevelWarn
	case logNotice, logInfo:
		level = slog.LevelInfo
	case logDebug:
		level = slog.LevelDebug
	}

	logger.Log(context.Background(), level, "php log",
		"thread_id", threadID,
		"php_syslog_type", msgType,
		"message", message,
	)
}
