package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a JSON logger at level. When path is set the output also goes to a
// rotated file.
func New(level, path string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	if path != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    10,
			MaxBackups: 10,
			MaxAge:     7,
			LocalTime:  true,
		}))
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(sinks...),
		lvl,
	)
	return zap.New(core, zap.AddCaller()), nil
}

// Duration is a zap field for elapsed time since start.
func Duration(start time.Time) zap.Field {
	return zap.Duration("duration", time.Since(start))
}
