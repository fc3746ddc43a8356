package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBusy is returned when another holder owns the token's lease.
var ErrBusy = errors.New("store: token lease busy")

// Lease is a short-lived exclusive right to mutate one token's state and
// execute at most one trade for it. Implemented as a compare-and-set on
// lease columns with a TTL: a holder that outlives the TTL is forcibly
// displaced by the next acquirer.
type Lease struct {
	s        *Store
	tokenID  string
	owner    string
	mu       sync.Mutex
	released bool
}

// AcquireLease attempts to take the per-token lease. Returns ErrBusy when
// a live lease is held elsewhere.
func (s *Store) AcquireLease(ctx context.Context, tokenID string) (*Lease, error) {
	owner := uuid.NewString()
	now := time.Now().UTC()
	q := s.rebind(`UPDATE flywheel_state
		SET lease_owner = ?, lease_until = ?
		WHERE token_id = ? AND (lease_owner IS NULL OR lease_until IS NULL OR lease_until <= ?)`)
	res, err := s.db.ExecContext(ctx, q, owner, now.Add(s.leaseTTL), tokenID, now)
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", tokenID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", tokenID, err)
	}
	if n == 0 {
		return nil, ErrBusy
	}
	return &Lease{s: s, tokenID: tokenID, owner: owner}, nil
}

// Release returns the lease. Safe to call more than once; releasing a
// lease already displaced by TTL expiry is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	l.released = true

	q := l.s.rebind(`UPDATE flywheel_state SET lease_owner = NULL, lease_until = NULL
		WHERE token_id = ? AND lease_owner = ?`)
	if _, err := l.s.db.ExecContext(ctx, q, l.tokenID, l.owner); err != nil {
		return fmt.Errorf("release lease %s: %w", l.tokenID, err)
	}
	return nil
}

// TokenID returns the leased token.
func (l *Lease) TokenID() string { return l.tokenID }
