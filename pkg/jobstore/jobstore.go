// Package jobstore keeps the lifecycle record of every search request in the
// shared KV store.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"ai-restaurant-search-be/pkg/kv"
)

var (
	ErrNotFound          = errors.New("jobstore: job not found")
	ErrInvalidTransition = errors.New("jobstore: invalid status transition")
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusRunning     Status = "RUNNING"
	StatusDoneSuccess Status = "DONE_SUCCESS"
	StatusDoneFailed  Status = "DONE_FAILED"
)

func (s Status) Terminal() bool {
	return s == StatusDoneSuccess || s == StatusDoneFailed
}

var transitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusDoneFailed},
	StatusRunning: {StatusDoneSuccess, StatusDoneFailed},
}

func (s Status) canMoveTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Record struct {
	RequestID    string          `json:"requestId"`
	OwnerID      string          `json:"ownerId"`
	Query        string          `json:"query"`
	Status       Status          `json:"status"`
	Progress     int             `json:"progress"`
	Stage        string          `json:"stage,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorCode    string          `json:"errorCode,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type Config struct {
	ActiveTTL time.Duration
	ResultTTL time.Duration
}

// Store serializes writes in-process; across nodes each job has a single
// writer, the runner that owns it.
type Store struct {
	kv  kv.Store
	cfg Config
	mu  sync.Mutex
	now func() time.Time
}

func New(store kv.Store, cfg Config) *Store {
	if cfg.ActiveTTL <= 0 {
		cfg.ActiveTTL = 10 * time.Minute
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Hour
	}
	return &Store{kv: store, cfg: cfg, now: time.Now}
}

func key(requestID string) string {
	return "job:" + requestID
}

// Create writes a PENDING record. It fails if the id already exists.
func (s *Store) Create(ctx context.Context, requestID, ownerID, query string) (*Record, error) {
	now := s.now().UTC()
	rec := &Record{
		RequestID: requestID,
		OwnerID:   ownerID,
		Query:     query,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", requestID, err)
	}
	ok, err := s.kv.SetNX(ctx, key(requestID), raw, s.cfg.ActiveTTL)
	if err != nil {
		return nil, fmt.Errorf("create job %s: %w", requestID, err)
	}
	if !ok {
		return nil, fmt.Errorf("create job %s: already exists", requestID)
	}
	return rec, nil
}

func (s *Store) Get(ctx context.Context, requestID string) (*Record, error) {
	var rec Record
	if err := kv.GetJSON(ctx, s.kv, key(requestID), &rec); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *Store) SetRunning(ctx context.Context, requestID string) error {
	return s.update(ctx, requestID, func(rec *Record) error {
		return moveTo(rec, StatusRunning)
	})
}

// SetProgress only moves progress forward. Stale or terminal updates are
// ignored without error.
func (s *Store) SetProgress(ctx context.Context, requestID string, progress int, stage string) error {
	return s.update(ctx, requestID, func(rec *Record) error {
		if rec.Status.Terminal() || progress <= rec.Progress {
			return errSkip
		}
		if progress > 100 {
			progress = 100
		}
		rec.Progress = progress
		rec.Stage = stage
		return nil
	})
}

func (s *Store) SetResult(ctx context.Context, requestID string, result interface{}) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", requestID, err)
	}
	return s.update(ctx, requestID, func(rec *Record) error {
		if err := moveTo(rec, StatusDoneSuccess); err != nil {
			return err
		}
		rec.Progress = 100
		rec.Result = raw
		return nil
	})
}

func (s *Store) SetError(ctx context.Context, requestID, code, message string) error {
	return s.update(ctx, requestID, func(rec *Record) error {
		if err := moveTo(rec, StatusDoneFailed); err != nil {
			return err
		}
		rec.Progress = 100
		rec.ErrorCode = code
		rec.ErrorMessage = message
		return nil
	})
}

var errSkip = errors.New("skip")

func moveTo(rec *Record, next Status) error {
	if !rec.Status.canMoveTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, next)
	}
	rec.Status = next
	return nil
}

func (s *Store) update(ctx context.Context, requestID string, mutate func(*Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if err := mutate(rec); err != nil {
		if errors.Is(err, errSkip) {
			return nil
		}
		return err
	}
	rec.UpdatedAt = s.now().UTC()

	ttl := s.cfg.ActiveTTL
	if rec.Status.Terminal() {
		ttl = s.cfg.ResultTTL
	}
	return kv.SetJSON(ctx, s.kv, key(requestID), rec, ttl)
}
