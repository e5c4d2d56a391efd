package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// consoleEncoder renders log lines as "LEVEL message  key=value key=value"
// without zap's default caller/timestamp clutter — calm output suited to a
// CLI driving a sync session interactively.
type consoleEncoder struct {
	zapcore.Encoder
}

func newConsoleEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	return &consoleEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}
}

func (e *consoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	buf := buffer.NewPool().Get()

	buf.AppendString(levelLabel(entry.Level))
	buf.AppendString(" ")
	buf.AppendString(entry.Message)

	if len(fields) > 0 {
		parts := make([]string, 0, len(fields))
		enc := zapcore.NewMapObjectEncoder()
		for _, f := range fields {
			f.AddTo(enc)
		}
		for k, v := range enc.Fields {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
		buf.AppendString("  ")
		buf.AppendString(strings.Join(parts, " "))
	}

	buf.AppendString("\n")
	return buf, nil
}

func levelLabel(l zapcore.Level) string {
	switch l {
	case zapcore.DebugLevel:
		return "DEBUG"
	case zapcore.InfoLevel:
		return "INFO "
	case zapcore.WarnLevel:
		return "WARN "
	case zapcore.ErrorLevel:
		return "ERROR"
	default:
		return strings.ToUpper(l.String())
	}
}
