package lib

import (
	"os"
	"path/filepath"

	"gitlab.com/ConsignEx/escrowrouter/internal/interfaces"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const timeLayout = "2006-01-02T15:04:05"

// Logger is a thin wrapper around zap.SugaredLogger that keeps Named/With
// chainable through the interfaces.ILogger type.
type Logger struct {
	*zap.SugaredLogger
}

func NewLogger(level string, color, isProd, isJSON bool, logFilePath string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(isProd, color, isJSON), zapcore.AddSync(os.Stdout), lvl),
	}

	if logFilePath != "" {
		file, err := os.OpenFile(filepath.Clean(logFilePath), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
		if err != nil {
			return nil, err
		}
		// file sink captures everything regardless of console level
		cores = append(cores, zapcore.NewCore(newEncoder(isProd, false, isJSON), zapcore.AddSync(file), zapcore.DebugLevel))
	}

	opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if !isProd {
		opts = append(opts, zap.Development())
	}

	return &Logger{SugaredLogger: zap.New(zapcore.NewTee(cores...), opts...).Sugar()}, nil
}

// NewTestLogger logs only to stdout at debug level
func NewTestLogger() *Logger {
	log, _ := NewLogger("debug", false, false, false, "")
	return log
}

func newEncoder(isProd, color, isJSON bool) zapcore.Encoder {
	var cfg zapcore.EncoderConfig
	if isProd {
		cfg = zap.NewProductionEncoderConfig()
	} else {
		cfg = zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	}
	if color && !isJSON {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if isJSON {
		return zapcore.NewJSONEncoder(cfg)
	}
	return zapcore.NewConsoleEncoder(cfg)
}

func (l *Logger) Named(name string) interfaces.ILogger {
	return &Logger{l.SugaredLogger.Named(name)}
}

func (l *Logger) With(args ...interface{}) interfaces.ILogger {
	return &Logger{l.SugaredLogger.With(args...)}
}
