package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Level はログレベルを表す
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel は文字列からログレベルを解析する
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

func (l Level) logrusLevel() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// WorkerField はワーカーIDを格納するフィールド名
const WorkerField = "worker"

const timestampFormat = "2006-01-02 15:04:05.000"

// Logger はスレッドセーフなロガー
type Logger struct {
	underlying *logrus.Logger
}

// Default はデフォルトのロガー
var Default = New(os.Stdout, LevelInfo)

// New は新しいロガーを作成する
func New(out io.Writer, minLevel Level) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(minLevel.logrusLevel())
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
		DisableColors:   true,
	})
	return &Logger{underlying: l}
}

// FromLogrus は既存のlogrusロガーをラップする
func FromLogrus(l *logrus.Logger) *Logger {
	return &Logger{underlying: l}
}

// Logrus は内部のlogrusロガーを返す
func (l *Logger) Logrus() *logrus.Logger {
	return l.underlying
}

// SetLevel はログレベルを設定する
func (l *Logger) SetLevel(level Level) {
	l.underlying.SetLevel(level.logrusLevel())
}

// SetJSON はJSONフォーマッタに切り替える
func (l *Logger) SetJSON(enabled bool) {
	if enabled {
		l.underlying.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timestampFormat})
		return
	}
	l.underlying.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
		DisableColors:   true,
	})
}

func (l *Logger) entry(workerID string) *logrus.Entry {
	e := logrus.NewEntry(l.underlying)
	if workerID != "" {
		e = e.WithField(WorkerField, workerID)
	}
	return e
}

// Debug はデバッグログを出力する
func (l *Logger) Debug(workerID string, format string, args ...any) {
	l.entry(workerID).Debugf(format, args...)
}

// Info は情報ログを出力する
func (l *Logger) Info(workerID string, format string, args ...any) {
	l.entry(workerID).Infof(format, args...)
}

// Warn は警告ログを出力する
func (l *Logger) Warn(workerID string, format string, args ...any) {
	l.entry(workerID).Warnf(format, args...)
}

// Error はエラーログを出力する
func (l *Logger) Error(workerID string, format string, args ...any) {
	l.entry(workerID).Errorf(format, args...)
}

// WithFields はフィールド付きのエントリを返す
func (l *Logger) WithFields(fields map[string]any) *logrus.Entry {
	return l.underlying.WithFields(fields)
}

// WithError はエラー付きのエントリを返す
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.underlying.WithError(err)
}

// Configure はデフォルトロガーのレベルとフォーマットを設定する
func Configure(level string, format string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	switch strings.ToLower(format) {
	case "", "text":
		Default.SetJSON(false)
	case "json":
		Default.SetJSON(true)
	default:
		return fmt.Errorf("unknown log format: %s", format)
	}
	Default.SetLevel(lvl)
	return nil
}

// グローバル関数（デフォルトロガーを使用）

// Debug はデバッグログを出力する
func Debug(workerID string, format string, args ...any) {
	Default.Debug(workerID, format, args...)
}

// Info は情報ログを出力する
func Info(workerID string, format string, args ...any) {
	Default.Info(workerID, format, args...)
}

// Warn は警告ログを出力する
func Warn(workerID string, format string, args ...any) {
	Default.Warn(workerID, format, args...)
}

// Error はエラーログを出力する
func Error(workerID string, format string, args ...any) {
	Default.Error(workerID, format, args...)
}

// WithFields はデフォルトロガーでフィールド付きのエントリを返す
func WithFields(fields map[string]any) *logrus.Entry {
	return Default.WithFields(fields)
}

// WithError はデフォルトロガーでエラー付きのエントリを返す
func WithError(err error) *logrus.Entry {
	return Default.WithError(err)
}
