package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func observed(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, recorded := observer.New(level)
	return zap.New(core), recorded
}

func fieldMap(entry observer.LoggedEntry) map[string]any {
	return entry.ContextMap()
}

func TestGormLogger_Options(t *testing.T) {
	l, _ := observed(zapcore.InfoLevel)
	gl := NewGormLogger(l, gormlogger.Info,
		WithSlowThreshold(500*time.Millisecond),
		WithMaxSQLLength(64),
	)
	assert.Equal(t, 500*time.Millisecond, gl.slowThreshold)
	assert.Equal(t, 64, gl.maxSQLLength)

	other, ok := gl.LogMode(gormlogger.Warn).(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Warn, other.level)
	assert.Equal(t, gormlogger.Info, gl.level, "LogMode copies")

	var _ gormlogger.Interface = gl
}

func TestGormLogger_Messages(t *testing.T) {
	l, recorded := observed(zapcore.InfoLevel)
	gl := NewGormLogger(l, gormlogger.Warn)

	gl.Info(context.Background(), "suppressed %s", "info")
	gl.Warn(context.Background(), "slow %s", "warn")
	gl.Error(context.Background(), "broken %d", 1)

	logs := recorded.All()
	require.Len(t, logs, 2)
	assert.Equal(t, "slow warn", logs[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, logs[1].Level)
}

func TestGormLogger_Trace(t *testing.T) {
	query := func() (string, int64) { return "SELECT * FROM edire_bindings", 3 }

	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		opts    []GormLoggerOption
		begin   time.Time
		err     error
		wantMsg string
	}{
		{name: "error", level: gormlogger.Error, begin: time.Now(), err: errors.New("boom"), wantMsg: "sql error"},
		{name: "record not found ignored", level: gormlogger.Error, begin: time.Now(), err: gormlogger.ErrRecordNotFound},
		{
			name:    "slow query",
			level:   gormlogger.Warn,
			opts:    []GormLoggerOption{WithSlowThreshold(time.Nanosecond)},
			begin:   time.Now().Add(-time.Second),
			wantMsg: "slow sql",
		},
		{name: "normal query", level: gormlogger.Info, begin: time.Now(), wantMsg: "sql"},
		{name: "silent", level: gormlogger.Silent, begin: time.Now()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, recorded := observed(zapcore.DebugLevel)
			gl := NewGormLogger(l, tt.level, tt.opts...)
			gl.Trace(context.Background(), tt.begin, query, tt.err)

			if tt.wantMsg == "" {
				assert.Empty(t, recorded.All())
				return
			}
			logs := recorded.All()
			require.Len(t, logs, 1)
			assert.Contains(t, logs[0].Message, tt.wantMsg)
			assert.Equal(t, "SELECT * FROM edire_bindings", fieldMap(logs[0])["sql"])
		})
	}
}

func TestGormLogger_TraceCarriesRunFields(t *testing.T) {
	l, recorded := observed(zapcore.DebugLevel)
	gl := NewGormLogger(l, gormlogger.Info)

	ctx, _ := WithRun(context.Background(), zap.NewNop(), "qnb-main", "run-1")
	ctx, _ = WithRequestID(ctx, zap.NewNop(), "req-9")
	gl.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)

	logs := recorded.All()
	require.Len(t, logs, 1)
	fields := fieldMap(logs[0])
	assert.Equal(t, "qnb-main", fields["source_id"])
	assert.Equal(t, "run-1", fields["run_id"])
	assert.Equal(t, "req-9", fields["request_id"])
}

func TestGormLogger_TruncatesLongStatements(t *testing.T) {
	l, recorded := observed(zapcore.DebugLevel)
	gl := NewGormLogger(l, gormlogger.Info, WithMaxSQLLength(10))

	gl.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "INSERT INTO edire_sync_logs (response_snippet) VALUES ('...')", 1
	}, nil)

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "INSERT INT...", fieldMap(logs[0])["sql"])
}
