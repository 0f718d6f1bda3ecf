package cate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
	"github.com/rnicoll/cate/internal/build"
)

// Loggers per subsystem. A single backend logger is created and all
// subsystem loggers created from it write to the same backend. When adding a
// new package, add its logger here and to subsystemLoggers.
//
// Loggers must not be used before initLogRotator has pointed logWriter at a
// file, or output is silently dropped.
var (
	logWriter = &build.LogWriter{}

	backendLog = btclog.NewBackend(logWriter)

	logRotator *rotator.Rotator

	engnLog = build.NewSubLogger("ENGN", backendLog.Logger)
	swapLog = build.NewSubLogger("SWAP", backendLog.Logger)
	scanLog = build.NewSubLogger("SCAN", backendLog.Logger)
	strLog  = build.NewSubLogger("STOR", backendLog.Logger)
	regLog  = build.NewSubLogger("CREG", backendLog.Logger)
	rpcLog  = build.NewSubLogger("CRPC", backendLog.Logger)
	cateLog = build.NewSubLogger("CATE", backendLog.Logger)
)

var subsystemLoggers = map[string]btclog.Logger{
	"ENGN": engnLog,
	"SWAP": swapLog,
	"SCAN": scanLog,
	"STOR": strLog,
	"CREG": regLog,
	"CRPC": rpcLog,
	"CATE": cateLog,
}

// initLogRotator initializes the logging rotator to write logs to logFile
// and create roll files in the same directory.
func initLogRotator(logFile string, maxLogFileSize, maxLogFiles int) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(logFile, int64(maxLogFileSize*1024), false, maxLogFiles)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	pr, pw := io.Pipe()
	go r.Run(pr)

	logWriter.RotatorPipe = pw
	logRotator = r
	return nil
}

// SetLogLevel sets the logging level for the named subsystem. Unknown
// subsystems are ignored.
func SetLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the log level for every subsystem logger.
func SetLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		SetLogLevel(subsystemID, logLevel)
	}
}
