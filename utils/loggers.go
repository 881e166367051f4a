package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
)

var (
	logMu        sync.RWMutex
	currentLevel = LevelInfo

	infoLogger    = log.New(os.Stdout, "", log.Ldate|log.Ltime)
	warningLogger = log.New(os.Stdout, "", log.Ldate|log.Ltime)
	errorLogger   = log.New(os.Stderr, "", log.Ldate|log.Ltime)

	debugTag   = color.New(color.FgCyan).Sprint("DEBUG: ")
	infoTag    = color.New(color.FgGreen).Sprint("INFO: ")
	warningTag = color.New(color.FgYellow).Sprint("WARNING: ")
	errorTag   = color.New(color.FgHiRed).Sprint("ERROR: ")
)

// InitLogger sets the minimum level (debug, info, warn, error).
func InitLogger(level string) {
	logMu.Lock()
	defer logMu.Unlock()

	switch strings.ToLower(level) {
	case "debug":
		currentLevel = LevelDebug
	case "warn", "warning":
		currentLevel = LevelWarning
	case "error":
		currentLevel = LevelError
	default:
		currentLevel = LevelInfo
	}
}

// SetLogOutput redirects every level to w. Used by tests.
func SetLogOutput(w io.Writer) {
	infoLogger.SetOutput(w)
	warningLogger.SetOutput(w)
	errorLogger.SetOutput(w)
}

func enabled(level LogLevel) bool {
	logMu.RLock()
	defer logMu.RUnlock()
	return level >= currentLevel
}

func LogDebug(format string, a ...any) {
	if enabled(LevelDebug) {
		infoLogger.Println(debugTag + fmt.Sprintf(format, a...))
	}
}

func LogInfo(format string, a ...any) {
	if enabled(LevelInfo) {
		infoLogger.Println(infoTag + fmt.Sprintf(format, a...))
	}
}

func LogWarning(format string, a ...any) {
	if enabled(LevelWarning) {
		warningLogger.Println(warningTag + fmt.Sprintf(format, a...))
	}
}

func LogError(message string, err error) {
	if !enabled(LevelError) {
		return
	}
	if err != nil {
		errorLogger.Printf("%s%s: %v", errorTag, message, err)
	} else {
		errorLogger.Println(errorTag + message)
	}
}

func LogFatal(message string, err error) {
	if err != nil {
		errorLogger.Fatalf("%s%s: %v", errorTag, message, err)
	} else {
		errorLogger.Fatal(errorTag + message)
	}
}
