// Package logger provides a leveled, thread-safe logging facility backed by logrus.
//
// The logger supports four levels: Debug, Info, Warn, and Error.
// Each log entry includes a timestamp, level, optional worker ID, and message.
//
// # Basic Usage
//
// Using the default logger:
//
//	logger.Info("", "Workload started")
//	logger.Info("worker-3", "Finished %d records", n)
//	logger.Error("", "Setup failed: %v", err)
//
// Structured fields are available for progress lines:
//
//	logger.WithFields(map[string]any{"writes_per_sec": 120}).Info("progress")
//
// Creating a custom logger:
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Debug("worker-1", "Debug message")
//
// # Formats
//
// Configure switches the default logger between the text formatter (operator
// facing, default) and the JSON formatter (for log shipping).
//
// # Thread Safety
//
// logrus serialises writes with its own mutex; all functions are safe for
// concurrent use.
package logger
