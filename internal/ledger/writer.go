package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"factcheck/api/internal/schema"
	"factcheck/api/internal/store"
)

// MaxAttempts bounds the read-compute-CAS cycle per append.
const MaxAttempts = 5

// ErrChainContention is returned in strict mode when every head CAS attempt
// lost to a concurrent writer.
var ErrChainContention = errors.New("revision head contention")

// HeadStore is the storage the writer needs: the dossier head pointer with a
// single-row compare-and-swap, plus the revision collection.
type HeadStore interface {
	ReadHead(ctx context.Context, dossierID string) (store.Head, error)
	TryAdvanceHead(ctx context.Context, dossierID string, expected *string, next string, at time.Time) (bool, error)
	LatestRevisionHash(ctx context.Context, dossierID string) (*string, error)
	InsertRevision(ctx context.Context, rev store.Revision) error
}

// Locker serializes appenders for one dossier. It only reduces contention;
// the head CAS remains the source of truth.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(context.Context) error, err error)
}

// Entry is the caller-supplied part of a revision.
type Entry struct {
	DossierID   string `json:"dossierId" validate:"required"`
	EntityType  string `json:"entityType" validate:"required,entitytype"`
	EntityID    string `json:"entityId" validate:"required"`
	Action      string `json:"action" validate:"required,revaction"`
	DiffSummary string `json:"diffSummary" validate:"max=500"`
	ByRole      string `json:"byRole" validate:"required,role"`
	ByUserID    string `json:"byUserId,omitempty" validate:"omitempty,max=128"`
}

// AppendResult reports how the revision was linked. Degraded is set when the
// revision was inserted without winning the head CAS, so the dossier head may
// not point at it.
type AppendResult struct {
	Revision store.Revision
	Attempts int
	Degraded bool
}

type Writer struct {
	store   HeadStore
	chain   bool
	strict  bool
	locker  Locker
	now     func() time.Time
	newID   func() string
	backoff func(attempt int) time.Duration
}

type Option func(*Writer)

// WithHashChain toggles tamper evidence. When off, revisions carry no hash
// fields and the head is never touched.
func WithHashChain(enabled bool) Option {
	return func(w *Writer) { w.chain = enabled }
}

// WithStrictChain makes the writer fail with ErrChainContention instead of
// inserting a degraded revision.
func WithStrictChain() Option {
	return func(w *Writer) { w.strict = true }
}

func WithLocker(l Locker) Option {
	return func(w *Writer) { w.locker = l }
}

func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(w *Writer) { w.backoff = fn }
}

func NewWriter(s HeadStore, opts ...Option) *Writer {
	w := &Writer{
		store:   s,
		chain:   true,
		now:     time.Now,
		newID:   uuid.NewString,
		backoff: jitteredBackoff,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) HashChain() bool {
	return w.chain
}

// Append records one revision for the entry.
func (w *Writer) Append(ctx context.Context, e Entry) (AppendResult, error) {
	e.DiffSummary = TruncateSummary(e.DiffSummary)
	if err := schema.Check("revision", e); err != nil {
		return AppendResult{}, err
	}

	rev := store.Revision{
		RevID:       w.newID(),
		DossierID:   e.DossierID,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Action:      e.Action,
		DiffSummary: e.DiffSummary,
		ByRole:      e.ByRole,
	}
	if e.ByUserID != "" {
		userID := e.ByUserID
		rev.ByUserID = &userID
	}

	if !w.chain {
		rev.Timestamp = w.timestamp()
		if err := w.store.InsertRevision(ctx, rev); err != nil {
			return AppendResult{}, fmt.Errorf("append revision: %w", err)
		}
		revisionsAppended.WithLabelValues("plain").Inc()
		return AppendResult{Revision: rev, Attempts: 1}, nil
	}

	if w.locker != nil {
		unlock, err := w.locker.Lock(ctx, e.DossierID)
		if err != nil {
			log.Printf("ledger: lock for dossier %s unavailable, relying on head CAS: %v", e.DossierID, err)
		} else {
			defer func() {
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					log.Printf("ledger: release lock for dossier %s: %v", e.DossierID, err)
				}
			}()
		}
	}

	algo := HashAlgo
	attempts := 0
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, w.backoff(attempt-1)); err != nil {
				return AppendResult{}, fmt.Errorf("append revision: %w", err)
			}
		}
		attempts = attempt

		head, err := w.store.ReadHead(ctx, e.DossierID)
		if err != nil {
			return AppendResult{}, fmt.Errorf("append revision: %w", err)
		}
		prev := head.Hash
		if prev == nil {
			prev, err = w.store.LatestRevisionHash(ctx, e.DossierID)
			if err != nil {
				return AppendResult{}, fmt.Errorf("append revision: %w", err)
			}
		}

		rev.Timestamp = w.timestamp()
		rev.PrevHash = prev
		hash := HashRevision(rev)
		rev.Hash = &hash
		rev.HashAlgo = &algo

		// The expectation is the head as observed, not the fallback scan, so a
		// dossier without a head pointer adopts the existing chain.
		advanced, err := w.store.TryAdvanceHead(ctx, e.DossierID, head.Hash, hash, rev.Timestamp)
		if err != nil {
			return AppendResult{}, fmt.Errorf("append revision: %w", err)
		}
		if !advanced {
			headConflicts.Inc()
			continue
		}

		if err := w.store.InsertRevision(ctx, rev); err != nil {
			return AppendResult{}, fmt.Errorf("append revision: %w", err)
		}
		revisionsAppended.WithLabelValues("chained").Inc()
		appendAttempts.Observe(float64(attempt))
		return AppendResult{Revision: rev, Attempts: attempt}, nil
	}

	if w.strict {
		return AppendResult{Attempts: attempts}, fmt.Errorf("append revision for dossier %s: %w", e.DossierID, ErrChainContention)
	}

	log.Printf("ledger: head CAS exhausted after %d attempts for dossier %s; revision %s inserted without advancing head", attempts, e.DossierID, rev.RevID)
	degradedAppends.Inc()
	if err := w.store.InsertRevision(ctx, rev); err != nil {
		return AppendResult{}, fmt.Errorf("append revision: %w", err)
	}
	revisionsAppended.WithLabelValues("degraded").Inc()
	appendAttempts.Observe(float64(attempts))
	return AppendResult{Revision: rev, Attempts: attempts, Degraded: true}, nil
}

func (w *Writer) timestamp() time.Time {
	return w.now().UTC().Truncate(time.Millisecond)
}

// TruncateSummary bounds a diff summary to schema.MaxDiffSummary runes.
func TruncateSummary(s string) string {
	if utf8.RuneCountInString(s) <= schema.MaxDiffSummary {
		return s
	}
	runes := []rune(s)
	return string(runes[:schema.MaxDiffSummary-1]) + "…"
}

func jitteredBackoff(attempt int) time.Duration {
	base := time.Duration(5<<attempt) * time.Millisecond
	return base + rand.N(base)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
