package repository

import (
	"context"
	"fmt"
	"time"

	"TradeCore/internal/domain/models"
	domrepo "TradeCore/internal/domain/repository"
	applogger "TradeCore/pkg/logger"
)

// execer is the slice of the ClickHouse client the store needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) error
}

// ClickHouseDecisionStore appends decision events to an audit table.
type ClickHouseDecisionStore struct {
	db    execer
	table string
	l     *applogger.Logger
}

func NewClickHouseDecisionStore(db execer, table string, l *applogger.Logger) *ClickHouseDecisionStore {
	return &ClickHouseDecisionStore{db: db, table: table, l: l}
}

// SchemaStatements returns the idempotent DDL for the audit table.
func (s *ClickHouseDecisionStore) SchemaStatements() []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            ts              DateTime64(3, 'UTC'),
            report_id       String,
            correlation_id  String,
            ticker          LowCardinality(String),
            account_id      String,
            action          LowCardinality(String),
            confidence      Float64,
            score           Float64,
            degraded        UInt8,
            order_side      LowCardinality(String),
            order_qty       Int64,
            limit_price     Float64,
            stop_price      Float64,
            client_order_id String,
            order_status    LowCardinality(String),
            policy_version  Int64
        ) ENGINE = MergeTree
        PARTITION BY toYYYYMM(ts)
        ORDER BY (ticker, ts)`, s.table)}
}

func (s *ClickHouseDecisionStore) Record(ctx context.Context, ev *models.DecisionEvent) error {
	start := time.Now()
	q := fmt.Sprintf(`INSERT INTO %s (ts, report_id, correlation_id, ticker, account_id, action, confidence, score,
        degraded, order_side, order_qty, limit_price, stop_price, client_order_id, order_status, policy_version)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	var (
		side          string
		qty           int64
		limit, stop   float64
		clientOrderID string
		degraded      uint8
	)
	if o := ev.Order; o != nil {
		side = string(o.Side)
		qty = o.Quantity
		limit = o.LimitPrice.InexactFloat64()
		stop = o.StopPrice.InexactFloat64()
		clientOrderID = o.ClientOrderID
	}
	if ev.Degraded {
		degraded = 1
	}

	err := s.db.ExecContext(ctx, q,
		ev.Timestamp,
		ev.ReportID,
		ev.CorrelationID,
		ev.Ticker,
		ev.AccountID,
		string(ev.Action),
		ev.Confidence,
		ev.Score,
		degraded,
		side,
		qty,
		limit,
		stop,
		clientOrderID,
		ev.OrderStatus,
		ev.PolicyVersion,
	)
	if err != nil {
		s.l.Error("clickhouse decision insert error",
			applogger.String("table", s.table),
			applogger.String("report_id", ev.ReportID),
			applogger.Error(err),
		)
		return fmt.Errorf("store decision: %w", err)
	}
	s.l.Debug("clickhouse decision stored", applogger.String("report_id", ev.ReportID), applogger.Duration("duration_ms", time.Since(start)))
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (s *ClickHouseDecisionStore) Close() error { return nil }

var _ domrepo.DecisionRecorder = (*ClickHouseDecisionStore)(nil)
