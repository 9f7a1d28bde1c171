package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeCore/internal/domain/models"
	"TradeCore/pkg/kafka"
	"TradeCore/pkg/logger"
)

type fakeExecer struct {
	queries []string
	args    [][]any
	err     error
}

func (f *fakeExecer) ExecContext(_ context.Context, q string, args ...any) error {
	f.queries = append(f.queries, q)
	f.args = append(f.args, args)
	return f.err
}

type fakePublisher struct {
	topic   string
	key     []byte
	value   interface{}
	headers []kafka.Header
	err     error
	closed  bool
}

func (f *fakePublisher) Publish(_ context.Context, topic string, key []byte, value interface{}, headers ...kafka.Header) error {
	f.topic, f.key, f.value, f.headers = topic, key, value, headers
	return f.err
}

func (f *fakePublisher) Close() error { f.closed = true; return nil }

func decisionEvent() *models.DecisionEvent {
	return &models.DecisionEvent{
		ReportID:      "r-1",
		CorrelationID: "c-1",
		Ticker:        "AAPL",
		AccountID:     "acc-1",
		Action:        models.ActionBuy,
		Confidence:    0.4,
		Score:         0.4,
		Degraded:      true,
		Order: &models.RiskAdjustedOrder{
			Symbol:        "AAPL",
			Side:          models.ActionBuy,
			Quantity:      6,
			LimitPrice:    decimal.NewFromInt(150),
			StopPrice:     decimal.RequireFromString("145.5"),
			ClientOrderID: "co-1",
		},
		OrderStatus:   models.OrderStatusSubmitted,
		PolicyVersion: 3,
		Timestamp:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestClickHouseDecisionStoreRecord(t *testing.T) {
	db := &fakeExecer{}
	s := NewClickHouseDecisionStore(db, "decision_log", logger.Nop())

	require.NoError(t, s.Record(context.Background(), decisionEvent()))
	require.Len(t, db.queries, 1)
	assert.Contains(t, db.queries[0], "INSERT INTO decision_log")

	args := db.args[0]
	require.Len(t, args, 16)
	assert.Equal(t, "r-1", args[1])
	assert.Equal(t, "buy", args[5])
	assert.Equal(t, uint8(1), args[8])
	assert.Equal(t, int64(6), args[10])
	assert.Equal(t, 145.5, args[12])
	assert.Equal(t, int64(3), args[15])
}

func TestClickHouseDecisionStoreHoldAndError(t *testing.T) {
	db := &fakeExecer{err: errors.New("conn refused")}
	s := NewClickHouseDecisionStore(db, "decision_log", logger.Nop())

	ev := decisionEvent()
	ev.Order = nil
	err := s.Record(context.Background(), ev)
	require.Error(t, err)
	assert.Equal(t, "", db.args[0][9])
	assert.Equal(t, int64(0), db.args[0][10])
}

func TestClickHouseDecisionStoreSchema(t *testing.T) {
	s := NewClickHouseDecisionStore(&fakeExecer{}, "audit", logger.Nop())
	stmts := s.SchemaStatements()
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS audit")
	assert.Contains(t, stmts[0], "MergeTree")
}

func TestKafkaDecisionPublisher(t *testing.T) {
	p := &fakePublisher{}
	k := NewKafkaDecisionPublisher(p, "decisions", logger.Nop())

	ev := decisionEvent()
	require.NoError(t, k.Record(context.Background(), ev))
	assert.Equal(t, "decisions", p.topic)
	assert.Equal(t, []byte("AAPL"), p.key)
	assert.Same(t, ev, p.value)
	assert.Contains(t, p.headers, kafka.Header{Key: "X-Correlation-ID", Value: "c-1"})

	p.err = errors.New("broker down")
	assert.ErrorIs(t, k.Record(context.Background(), ev), p.err)

	require.NoError(t, k.Close())
	assert.True(t, p.closed)
}

func TestMultiRecorderFansOut(t *testing.T) {
	okPub := &fakePublisher{}
	failing := &fakeExecer{err: errors.New("clickhouse down")}
	m := NewMultiRecorder(
		NewClickHouseDecisionStore(failing, "decision_log", logger.Nop()),
		nil,
		NewKafkaDecisionPublisher(okPub, "decisions", logger.Nop()),
	)
	assert.Equal(t, 2, m.Len())

	err := m.Record(context.Background(), decisionEvent())
	assert.ErrorIs(t, err, failing.err)
	assert.NotNil(t, okPub.value, "later sinks still receive the event")

	assert.NoError(t, m.Record(context.Background(), nil))
	assert.NoError(t, m.Close())
}
