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

const (
	queryStartCallback = "payroll:query_start:"
	queryEndCallback   = "payroll:query_end:"
)

var tracedOperations = []string{"create", "query", "update", "delete", "raw"}

// DBTracingConfig controls the gorm tracing plugin.
type DBTracingConfig struct {
	Enabled    bool
	LogFullSQL bool
	SlowQuery  time.Duration
	DBSystem   string
}

func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{SlowQuery: 200 * time.Millisecond, DBSystem: "postgresql"}
}

// DBTracingPlugin installs otelgorm and annotates the active span after each
// statement. Status transitions are conditional updates, so db.rows_affected
// = 0 on a payroll_records span is a lost race.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBTracingPlugin{config: cfg, logger: logger}
}

// Register is a no-op when tracing is disabled.
func (p *DBTracingPlugin) Register(db *gorm.DB) error {
	if !p.config.Enabled {
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}
	for _, op := range tracedOperations {
		if err := p.registerTiming(db, op); err != nil {
			return err
		}
	}

	p.logger.Info("Database tracing enabled",
		zap.String("db_system", p.config.DBSystem),
		zap.Duration("slow_query", p.config.SlowQuery),
	)
	return nil
}

func (p *DBTracingPlugin) registerTiming(db *gorm.DB, op string) error {
	anchor := "gorm:" + op
	start, end := queryStartCallback+op, queryEndCallback+op
	cb := db.Callback()
	switch op {
	case "create":
		return errors.Join(
			cb.Create().Before(anchor).Register(start, markQueryStart),
			cb.Create().After(anchor).Register(end, p.afterQuery))
	case "query":
		return errors.Join(
			cb.Query().Before(anchor).Register(start, markQueryStart),
			cb.Query().After(anchor).Register(end, p.afterQuery))
	case "update":
		return errors.Join(
			cb.Update().Before(anchor).Register(start, markQueryStart),
			cb.Update().After(anchor).Register(end, p.afterQuery))
	case "delete":
		return errors.Join(
			cb.Delete().Before(anchor).Register(start, markQueryStart),
			cb.Delete().After(anchor).Register(end, p.afterQuery))
	default:
		return errors.Join(
			cb.Raw().Before(anchor).Register(start, markQueryStart),
			cb.Raw().After(anchor).Register(end, p.afterQuery))
	}
}

func markQueryStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = WithQueryStartTime(db.Statement.Context)
	}
}

func (p *DBTracingPlugin) afterQuery(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{attribute.Int64("db.rows_affected", db.Statement.RowsAffected)}
	if db.Statement.Table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", db.Statement.Table))
	}
	if err := db.Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		if took := time.Since(start); took > p.config.SlowQuery {
			attrs = append(attrs,
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", took.Milliseconds()))
		}
	}
	span.SetAttributes(attrs...)
}

type queryStartKey struct{}

// WithQueryStartTime stamps ctx with the current time for slow query detection.
func WithQueryStartTime(ctx context.Context) context.Context {
	return context.WithValue(ctx, queryStartKey{}, time.Now())
}
