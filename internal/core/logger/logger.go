package logger

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Field = zap.Field

type Logger interface {
	Info(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

func StringField(key, value string) Field             { return zap.String(key, value) }
func ErrorField(key string, err error) Field          { return zap.NamedError(key, err) }
func AnyField(key string, value interface{}) Field    { return zap.Any(key, value) }
func Int64Field(key string, value int64) Field        { return zap.Int64(key, value) }
func IntField(key string, value int) Field            { return zap.Int(key, value) }
func DurationField(key string, d time.Duration) Field { return zap.Duration(key, d) }

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// NewLogger writes JSON to stdout. When logDir is not empty, info and
// warn+ records are additionally split into logDir/info.log and logDir/error.log.
func NewLogger(logDir string) (*zap.Logger, func()) {
	encoder := zapcore.NewJSONEncoder(encoderConfig())
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), zapcore.DebugLevel),
	}
	var files []*os.File

	if logDir != "" {
		infoFile, err := os.OpenFile(filepath.Join(logDir, "info.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			panic("failed to open info log file: " + err.Error())
		}

		errorFile, err := os.OpenFile(filepath.Join(logDir, "error.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			panic("failed to open error log file: " + err.Error())
		}
		files = append(files, infoFile, errorFile)

		cores = append(cores,
			zapcore.NewCore(
				encoder,
				zapcore.AddSync(infoFile),
				zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
					return lvl <= zapcore.InfoLevel
				}),
			),
			zapcore.NewCore(
				encoder,
				zapcore.AddSync(errorFile),
				zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
					return lvl >= zapcore.WarnLevel
				}),
			),
		)
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())

	cleanup := func() {
		_ = logger.Sync()
		for _, f := range files {
			f.Close()
		}
	}

	return logger, cleanup
}

// NewNop is used by tests that do not assert on log output.
func NewNop() *zap.Logger {
	return zap.NewNop()
}
