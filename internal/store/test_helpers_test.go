package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/bountyboard/internal/domain"
)

var testEpoch = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.SetClock(func() time.Time { return testEpoch })
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestBounty creates a draft bounty with minimal required fields.
func createTestBounty(id, customerID string, createdAt time.Time) *domain.Bounty {
	b := &domain.Bounty{
		ID:         id,
		CustomerID: customerID,
		Title:      "bounty " + id,
		Reward:     domain.Reward{Currency: "USD", Amount: 1000, Scale: 2},
		PaidStatus: domain.Unpaid,
		CreatedAt:  createdAt,
	}
	b.SetStatus(domain.StatusDraft, createdAt)
	b.Record(domain.ActivityEntry{
		Activity: domain.ActivityCreate,
		At:       createdAt,
		Origin:   domain.OriginInternal,
		Actor:    &domain.ActorRef{ID: "creator"},
	})
	return b
}
