package common

import (
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
	"log"
	"os"
	"strings"
	"sync"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// dProofLogger implements the ILogger interface with custom formatting
type dProofLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *dProofLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *dProofLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *dProofLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *dProofLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *dProofLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *dProofLogger) Panicf(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.log("PANIC", "%s", message)
	panic(message)
}

// log formats and writes a log message
func (l *dProofLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-15s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger implements dragonboats logger.Factory
func CreateLogger(pkgName string) logger.ILogger {
	stdLogger := log.New(os.Stdout, "", log.Ldate|log.Ltime)

	return &dProofLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: stdLogger,
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// dragonboatLoggers are the loggers created inside dragonboat
var dragonboatLoggers = []string{"raft", "raftdb", "rsm", "transport", "dragonboat", "grpc", "util", "logdb"}

// dProofLoggers are the loggers of this module
var dProofLoggers = []string{"store", "registry", "db", "transport/rpc", "rpc"}

// loggerFactoryOnce guards the factory install, dragonboat panics if it is set twice
var loggerFactoryOnce sync.Once

// InitLoggers installs the custom logger factory (once per process) and sets the level of all
// loggers. It may be called by every server that is started.
func InitLoggers(config ServerConfig) error {
	level, err := ParseLogLevel(config.LogLevel)
	if err != nil {
		return err
	}

	// Set as the global logger factory for Dragonboat
	loggerFactoryOnce.Do(func() {
		logger.SetLoggerFactory(CreateLogger)
	})

	for _, name := range dragonboatLoggers {
		logger.GetLogger(name).SetLevel(level)
	}
	for _, name := range dProofLoggers {
		logger.GetLogger(name).SetLevel(level)
	}
	return nil
}
