package log

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		level      int
		allowedLvl int
		msg        string
		logged     bool
	}{
		{InfoLevel, InfoLevel, "hello", true},
		{DebugLevel, InfoLevel, "hidden", false},
		{ErrorLevel, DebugLevel, "boom", true},
		{WarnLevel, ErrorLevel, "quiet", false},
		{WarnLevel, DebugLevel, "warned", true},
	}

	for _, test := range tests {
		var b bytes.Buffer
		writer := bufio.NewWriter(&b)
		l := New(zapcore.AddSync(writer), test.allowedLvl, false)

		switch test.level {
		case DebugLevel:
			l.Debugw(test.msg)
		case InfoLevel:
			l.Infow(test.msg)
		case WarnLevel:
			l.Warnw(test.msg)
		case ErrorLevel:
			l.Errorw(test.msg)
		}
		require.NoError(t, writer.Flush())

		if test.logged {
			require.Contains(t, b.String(), test.msg)
		} else {
			require.Empty(t, b.String())
		}
	}
}

func TestLoggerWithAndNamed(t *testing.T) {
	var b bytes.Buffer
	writer := bufio.NewWriter(&b)
	l := New(zapcore.AddSync(writer), InfoLevel, true).
		Named("h1").
		With("shard", 2)

	l.Infow("verifying", "rows", 10)
	require.NoError(t, writer.Flush())

	out := b.String()
	require.True(t, strings.Contains(out, `"h1"`) || strings.Contains(out, "h1"))
	require.Contains(t, out, `"shard":2`)
	require.Contains(t, out, `"rows":10`)
}

func TestNopLogger(t *testing.T) {
	require.NotPanics(t, func() {
		NewNop().Errorw("dropped", "key", "value")
	})
}
