// logs/logger.go
package logs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"okx_stop_go/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileHook duplicates every entry into the rotated engine log file, with its
// own formatter so the file stays free of console color codes.
type FileHook struct {
	formatter logrus.Formatter
	writer    io.Writer
}

func newFileHook(writer io.Writer, formatter logrus.Formatter) *FileHook {
	return &FileHook{
		writer:    writer,
		formatter: formatter,
	}
}

// Levels returns all log levels, so the hook is fired for all log entries.
func (h *FileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire formats and writes the log entry to the file.
func (h *FileHook) Fire(entry *logrus.Entry) error {
	formattedBytes, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(formattedBytes)
	return err
}

var (
	log              = logrus.New() // usable before Init for tests and library callers
	fileHookInstance *FileHook      // held so Close can reach the underlying writer
)

// Init wires the engine's logging: colored console output on stdout plus a
// rotated file at logFilePath, with level and rotation policy taken from the
// logs config block. An unparseable level falls back to info.
func Init(cfg *config.LogConfig, logFilePath string) error {
	log = logrus.New()
	parsedLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		parsedLevel = logrus.InfoLevel
	}
	log.SetLevel(parsedLevel)

	log.SetFormatter(&logrus.TextFormatter{
		ForceColors:            true,
		FullTimestamp:          true,
		TimestampFormat:        "2006-01-02 15:04:05",
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
	log.SetOutput(os.Stdout)

	// Silence the global logrus instance so accidental direct calls to
	// logrus.Info() or calls from third-party libraries produce no output.
	logrus.SetOutput(io.Discard)
	logrus.StandardLogger().Hooks = make(logrus.LevelHooks)

	logDir := filepath.Dir(logFilePath)
	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	lumberjackLogger := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	// Separate, plain formatter for file logs.
	fileFormatter := &logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}

	fileHookInstance = newFileHook(lumberjackLogger, fileFormatter)
	log.AddHook(fileHookInstance)

	Infof("Logging system initialized.")
	return nil
}

// Close flushes and closes the rotated log file. Called once on shutdown.
func Close() {
	if fileHookInstance != nil {
		if closer, ok := fileHookInstance.writer.(io.Closer); ok {
			closer.Close()
		}
	}
	Info("Logging system closed.")
}

// Wrapper functions to expose the logger.
func Debug(args ...interface{})                 { log.Debug(args...) }
func Debugf(format string, args ...interface{}) { log.Debugf(format, args...) }
func Info(args ...interface{})                  { log.Info(args...) }
func Infof(format string, args ...interface{})  { log.Infof(format, args...) }
func Warn(args ...interface{})                  { log.Warn(args...) }
func Warnf(format string, args ...interface{})  { log.Warnf(format, args...) }
func Error(args ...interface{})                 { log.Error(args...) }
func Errorf(format string, args ...interface{}) { log.Errorf(format, args...) }
func Fatal(args ...interface{})                 { log.Fatal(args...) }
func Fatalf(format string, args ...interface{}) { log.Fatalf(format, args...) }
