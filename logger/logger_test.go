package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{"json", true},
		{"console", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Initialize(tt.jsonOutput)
			require.NoError(t, err)
			assert.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)
		})
	}
}

func TestFieldsFromContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithSessionID(ctx, "sess-1")
	ctx = WithRequestID(ctx, "req-1")

	fields := FieldsFromContext(ctx)
	assert.Contains(t, fields, FieldSessionID)
	assert.Contains(t, fields, "sess-1")
	assert.Contains(t, fields, FieldRequestID)
	assert.Contains(t, fields, "req-1")
}

func TestFieldsFromContextEmpty(t *testing.T) {
	fields := FieldsFromContext(context.Background())
	assert.Empty(t, fields)
}

func TestLoggerFromContext(t *testing.T) {
	require.NoError(t, Initialize(false))
	ctx := WithSessionID(context.Background(), "sess-2")
	l := LoggerFromContext(ctx)
	assert.NotNil(t, l)
}

func TestComponentLogger(t *testing.T) {
	require.NoError(t, Initialize(false))
	l := ComponentLogger("session")
	assert.NotNil(t, l)
}
