package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for gorm query tracing
type DBTracingConfig struct {
	Enabled bool
	// LogFullSQL keeps bound variables in span statements (development only)
	LogFullSQL      bool
	SlowQueryThresh time.Duration
	DBName          string
}

// DefaultDBTracingConfig returns tracing off, variables hidden and a 200ms slow threshold
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		SlowQueryThresh: 200 * time.Millisecond,
		DBName:          "edire",
	}
}

type queryStartKey struct{}

// DBTracing registers otelgorm plus timing callbacks that flag slow queries
type DBTracing struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracing creates the plugin
func NewDBTracing(cfg DBTracingConfig, logger *zap.Logger) *DBTracing {
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}
	return &DBTracing{config: cfg, logger: logger}
}

// Register installs the plugin on db; a disabled config does nothing
func (p *DBTracing) Register(db *gorm.DB) error {
	if !p.config.Enabled {
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBName)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	if err := p.registerCallbacks(db); err != nil {
		return err
	}

	p.logger.Info("database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
	)
	return nil
}

// The after hooks run ahead of otelgorm's so the query span is still recording
func (p *DBTracing) registerCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	steps := []error{
		cb.Create().Before("gorm:create").Register("edire_timing:before_create", p.before),
		cb.Query().Before("gorm:query").Register("edire_timing:before_query", p.before),
		cb.Update().Before("gorm:update").Register("edire_timing:before_update", p.before),
		cb.Delete().Before("gorm:delete").Register("edire_timing:before_delete", p.before),
		cb.Row().Before("gorm:row").Register("edire_timing:before_row", p.before),
		cb.Raw().Before("gorm:raw").Register("edire_timing:before_raw", p.before),
		cb.Create().After("gorm:create").Before("otel:after:create").Register("edire_timing:after_create", p.after),
		cb.Query().After("gorm:query").Before("otel:after:query").Register("edire_timing:after_query", p.after),
		cb.Update().After("gorm:update").Before("otel:after:update").Register("edire_timing:after_update", p.after),
		cb.Delete().After("gorm:delete").Before("otel:after:delete").Register("edire_timing:after_delete", p.after),
		cb.Row().After("gorm:row").Before("otel:after:row").Register("edire_timing:after_row", p.after),
		cb.Raw().After("gorm:raw").Before("otel:after:raw").Register("edire_timing:after_raw", p.after),
	}
	return errors.Join(steps...)
}

func (p *DBTracing) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

func (p *DBTracing) after(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > p.config.SlowQueryThresh {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", p.config.SlowQueryThresh.Milliseconds()),
		))
	}
}
