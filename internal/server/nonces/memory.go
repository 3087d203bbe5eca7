package nonces

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/logging"
)

// MemoryStore keeps consumed nonces in process memory. Consuming a nonce
// whose entry has expired reuses that entry; other expired entries stay
// until Sweep or RunReaper drops them.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
	logger  logging.Logger
}

func NewMemoryStore(l logging.Logger) *MemoryStore {
	if l == nil {
		l = logging.Nop{}
	}
	return &MemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
		logger:  l.With("module", "nonces"),
	}
}

func (s *MemoryStore) Consume(ctx context.Context, nonce string, until time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.entries[nonce]; ok && now.Before(exp) {
		return ErrConsumed
	}
	s.entries[nonce] = until
	return nil
}

// Len reports how many entries are held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops expired entries and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for k, exp := range s.entries {
		if !now.Before(exp) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// RunReaper sweeps every interval until ctx is done.
func (s *MemoryStore) RunReaper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug(ctx, "expired nonces swept", "count", n)
			}
		}
	}
}
