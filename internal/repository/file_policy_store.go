package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"TradeCore/internal/domain/models"
	domrepo "TradeCore/internal/domain/repository"
	applogger "TradeCore/pkg/logger"
	"TradeCore/pkg/util"
)

const (
	livePolicyFile = "policy.json"
	historyDir     = "history"
	snapshotPrefix = "policy-"
	snapshotSuffix = ".json"
	reasonRollback = "rollback:"
	defaultReason  = "unspecified"
)

// FilePolicyStore keeps the live policy in <dir>/policy.json and pre-change snapshots in
// <dir>/history. Writers are serialized; Current never blocks.
type FilePolicyStore struct {
	dir     string
	bounds  *models.Bounds
	lock    domrepo.WriteLock
	metrics domrepo.Metrics
	l       *applogger.Logger

	mu        sync.Mutex
	cur       atomic.Pointer[models.PolicyDocument]
	now       func() time.Time
	writeFile func(path string, data []byte) error
}

// NewFilePolicyStore loads the live document, merging it over the static defaults.
// lock may be nil when a single process owns dir.
func NewFilePolicyStore(dir string, bounds *models.Bounds, lock domrepo.WriteLock, metrics domrepo.Metrics, l *applogger.Logger) (*FilePolicyStore, error) {
	s := &FilePolicyStore{
		dir:       dir,
		bounds:    bounds,
		lock:      lock,
		metrics:   metrics,
		l:         l,
		now:       time.Now,
		writeFile: writeFileAtomic,
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FilePolicyStore) Current() *models.PolicyDocument {
	return s.cur.Load()
}

func (s *FilePolicyStore) Bounds() *models.Bounds {
	return s.bounds
}

// Load reads the live file. Stored values outside their bounds are clamped and logged; a missing
// or unreadable file yields the defaults.
func (s *FilePolicyStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(s.dir, historyDir), 0o755); err != nil {
		return fmt.Errorf("%w: create policy dir: %w", models.ErrPersistence, err)
	}

	doc := &models.PolicyDocument{UpdatedAt: s.now().UTC(), Values: s.bounds.Defaults()}

	stored, err := s.readLive()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.l.Info("no live policy file, using defaults", applogger.String("dir", s.dir))
	case err != nil:
		s.l.Error("live policy file unreadable, using defaults", applogger.String("dir", s.dir), applogger.Error(err))
		s.metrics.RecordError("policy_load")
	default:
		doc = s.merge(stored, "load")
	}

	s.cur.Store(doc)
	s.metrics.RecordPolicyValues(doc.Values)
	s.l.Info("policy loaded", applogger.Int64("version", doc.Version), applogger.Int("parameters", len(doc.Values)))
	return nil
}

// Apply adds each delta to the current value and clamps the result. The pre-change state is
// snapshotted and the live file replaced before the new document becomes visible.
func (s *FilePolicyStore) Apply(ctx context.Context, deltas map[string]float64, reason string) (*models.PolicyDocument, error) {
	for name, d := range deltas {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			s.metrics.RecordPolicyWrite("apply", "rejected")
			return nil, fmt.Errorf("%w: %s=%v", models.ErrMalformedDeltas, name, d)
		}
	}

	return s.mutate(ctx, "apply", reason, func(cur *models.PolicyDocument) map[string]float64 {
		values := cur.CloneValues()
		for name, d := range deltas {
			if _, ok := s.bounds.Lookup(name); !ok {
				s.l.Warn("ignoring delta for unknown parameter", applogger.String("param", name))
				continue
			}
			values[name] = s.clamp(name, values[name]+d, "apply")
		}
		return values
	})
}

// Rollback restores a snapshot, re-validated against the current bounds. Parameters added since
// the snapshot was taken keep their defaults.
func (s *FilePolicyStore) Rollback(ctx context.Context, snapshotID string) (*models.PolicyDocument, error) {
	snap, err := s.readSnapshot(snapshotID)
	if err != nil {
		s.metrics.RecordPolicyWrite("rollback", "not_found")
		return nil, err
	}

	return s.mutate(ctx, "rollback", reasonRollback+snapshotID, func(_ *models.PolicyDocument) map[string]float64 {
		values := s.bounds.Defaults()
		for name, v := range snap.Parameters {
			if _, ok := s.bounds.Lookup(name); !ok {
				continue
			}
			values[name] = s.clamp(name, v, "rollback")
		}
		return values
	})
}

// ListSnapshots returns the history newest first. Unreadable entries are skipped.
func (s *FilePolicyStore) ListSnapshots(_ context.Context) ([]models.PolicySnapshot, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, historyDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.PolicySnapshot{}, nil
		}
		return nil, fmt.Errorf("%w: list snapshots: %w", models.ErrPersistence, err)
	}

	out := make([]models.PolicySnapshot, 0, len(entries))
	for _, e := range entries {
		id, ok := snapshotIDFromFile(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		snap, err := s.readSnapshot(id)
		if err != nil {
			s.l.Warn("skipping unreadable snapshot", applogger.String("snapshot_id", id), applogger.Error(err))
			continue
		}
		out = append(out, *snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// mutate runs one serialized write cycle. Nothing becomes visible unless the live file committed.
func (s *FilePolicyStore) mutate(ctx context.Context, op, reason string, next func(cur *models.PolicyDocument) map[string]float64) (*models.PolicyDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock != nil {
		release, err := s.lock.Acquire(ctx)
		if err != nil {
			s.metrics.RecordPolicyWrite(op, "locked")
			return nil, fmt.Errorf("%w: %w", models.ErrPersistence, err)
		}
		defer release()
	}

	cur := s.syncLive(s.cur.Load())
	values := next(cur)
	candidate := &models.PolicyDocument{Values: values}
	if candidate.SameValues(cur) {
		s.metrics.RecordPolicyWrite(op, "noop")
		return cur, nil
	}

	now := s.now().UTC()
	snap, err := s.writeSnapshot(cur, reason, now)
	if err != nil {
		s.metrics.RecordPolicyWrite(op, "error")
		return nil, err
	}

	doc := &models.PolicyDocument{Version: cur.Version + 1, UpdatedAt: now, Values: values}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encode policy: %w", models.ErrPersistence, err)
	}
	if err := s.writeFile(filepath.Join(s.dir, livePolicyFile), data); err != nil {
		if !errors.Is(err, errDirSync) {
			s.metrics.RecordPolicyWrite(op, "error")
			s.l.Error("policy write failed, keeping previous document",
				applogger.String("op", op),
				applogger.Int64("version", cur.Version),
				applogger.Error(err),
			)
			return nil, fmt.Errorf("%w: write live policy: %w", models.ErrPersistence, err)
		}
		s.l.Warn("policy committed but directory sync failed", applogger.Error(err))
	}

	s.cur.Store(doc)
	s.metrics.RecordPolicyWrite(op, "ok")
	s.metrics.RecordPolicyValues(doc.Values)
	s.l.Info("policy updated",
		applogger.String("op", op),
		applogger.String("reason", reason),
		applogger.String("snapshot_id", snap.ID),
		applogger.Int64("version", doc.Version),
	)
	return doc, nil
}

// merge lays a stored document over the defaults, clamping and dropping unknown names.
func (s *FilePolicyStore) merge(stored *models.PolicyDocument, stage string) *models.PolicyDocument {
	values := s.bounds.Defaults()
	for name, v := range stored.Values {
		if _, ok := s.bounds.Lookup(name); !ok {
			s.l.Warn("dropping unknown policy parameter", applogger.String("param", name))
			continue
		}
		values[name] = s.clamp(name, v, stage)
	}
	return &models.PolicyDocument{Version: stored.Version, UpdatedAt: stored.UpdatedAt, Values: values}
}

// syncLive adopts a newer live file committed by another process sharing dir. Caller holds
// the write lock, so the file cannot change underneath the following write.
func (s *FilePolicyStore) syncLive(cur *models.PolicyDocument) *models.PolicyDocument {
	stored, err := s.readLive()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.l.Warn("live policy file unreadable, writing over it", applogger.Error(err))
		}
		return cur
	}
	if stored.Version <= cur.Version {
		return cur
	}
	doc := s.merge(stored, "sync")
	s.cur.Store(doc)
	s.metrics.RecordPolicyValues(doc.Values)
	s.l.Info("adopted newer live policy",
		applogger.Int64("from_version", cur.Version),
		applogger.Int64("version", doc.Version),
	)
	return doc
}

func (s *FilePolicyStore) clamp(name string, v float64, stage string) float64 {
	clamped, changed := s.bounds.Clamp(name, v)
	if changed {
		s.metrics.RecordClamp(name)
		s.l.Warn("policy value clamped",
			applogger.String("stage", stage),
			applogger.String("param", name),
			applogger.Float64("requested", v),
			applogger.Float64("clamped", clamped),
		)
	}
	return clamped
}

func (s *FilePolicyStore) readLive() (*models.PolicyDocument, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, livePolicyFile))
	if err != nil {
		return nil, err
	}
	var doc models.PolicyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", livePolicyFile, err)
	}
	if doc.Values == nil {
		return nil, fmt.Errorf("decode %s: missing values", livePolicyFile)
	}
	return &doc, nil
}

func (s *FilePolicyStore) writeSnapshot(cur *models.PolicyDocument, reason string, now time.Time) (*models.PolicySnapshot, error) {
	var id string
	for seq := 0; ; seq++ {
		id = util.SnapshotID(now, seq)
		if _, err := os.Stat(s.snapshotPath(id)); errors.Is(err, fs.ErrNotExist) {
			break
		}
	}
	if reason == "" {
		reason = defaultReason
	}
	snap := &models.PolicySnapshot{ID: id, Timestamp: now, Reason: reason, Parameters: cur.CloneValues()}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encode snapshot: %w", models.ErrPersistence, err)
	}
	if err := s.writeFile(s.snapshotPath(id), data); err != nil && !errors.Is(err, errDirSync) {
		return nil, fmt.Errorf("%w: write snapshot: %w", models.ErrPersistence, err)
	}
	return snap, nil
}

func (s *FilePolicyStore) readSnapshot(id string) (*models.PolicySnapshot, error) {
	if _, err := util.ParseSnapshotID(id); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrSnapshotNotFound, err)
	}
	data, err := os.ReadFile(s.snapshotPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrSnapshotNotFound, id)
		}
		return nil, fmt.Errorf("%w: read snapshot: %w", models.ErrPersistence, err)
	}
	var snap models.PolicySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: decode snapshot %s: %w", models.ErrPersistence, id, err)
	}
	snap.ID = id
	return &snap, nil
}

func (s *FilePolicyStore) snapshotPath(id string) string {
	return filepath.Join(s.dir, historyDir, snapshotPrefix+id+snapshotSuffix)
}

func snapshotIDFromFile(name string) (string, bool) {
	if !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix), true
}
