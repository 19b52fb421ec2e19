package store

import (
	"context"
	"time"

	"github.com/roach88/bountyboard/internal/domain"
)

// FeedOptions configures a change-feed subscription.
type FeedOptions struct {
	// Poll bounds how long Next waits without a commit notification. Other
	// processes writing the same database do not notify this one.
	Poll time.Duration

	// Batch caps the number of changes returned by one Next call.
	Batch int

	// FromLatest starts a consumer with no saved cursor at the newest
	// change instead of the beginning of the feed.
	FromLatest bool
}

// DefaultFeedOptions returns the options used by the reconciler.
func DefaultFeedOptions() FeedOptions {
	return FeedOptions{
		Poll:  time.Second,
		Batch: 64,
	}
}

// Feed is one consumer's resumable view of the change feed.
//
// Not safe for concurrent use. Each consumer owns its own Feed.
type Feed struct {
	store    *Store
	consumer string
	opts     FeedOptions
	read     int64 // last seq handed out by Next
	acked    int64 // last seq persisted by Ack
}

// Subscribe opens the feed for a named consumer, resuming after the
// consumer's saved cursor.
func (s *Store) Subscribe(ctx context.Context, consumer string, opts FeedOptions) (*Feed, error) {
	if opts.Poll <= 0 {
		opts.Poll = DefaultFeedOptions().Poll
	}
	if opts.Batch <= 0 {
		opts.Batch = DefaultFeedOptions().Batch
	}

	pos, err := s.Cursor(ctx, consumer)
	if err != nil {
		return nil, err
	}
	if pos == 0 && opts.FromLatest {
		pos, err = s.LatestSeq(ctx)
		if err != nil {
			return nil, err
		}
	}

	return &Feed{
		store:    s,
		consumer: consumer,
		opts:     opts,
		read:     pos,
		acked:    pos,
	}, nil
}

// Consumer returns the consumer name.
func (f *Feed) Consumer() string {
	return f.consumer
}

// Position returns the last acknowledged sequence.
func (f *Feed) Position() int64 {
	return f.acked
}

// Next blocks until at least one change after the last one handed out is
// available, then returns them in commit order. Returns ctx.Err() when ctx
// is done.
func (f *Feed) Next(ctx context.Context) ([]domain.Change, error) {
	ticker := time.NewTicker(f.opts.Poll)
	defer ticker.Stop()

	for {
		// Fetch the wakeup channel before reading so a commit between the
		// read and the wait is not missed.
		wake := f.store.Changed()

		changes, err := f.store.ReadChanges(ctx, f.read, f.opts.Batch)
		if err != nil {
			return nil, err
		}
		if len(changes) > 0 {
			f.read = changes[len(changes)-1].Seq
			return changes, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		case <-ticker.C:
		}
	}
}

// Ack persists seq as processed. Acknowledging an older sequence is a no-op.
func (f *Feed) Ack(ctx context.Context, seq int64) error {
	if seq <= f.acked {
		return nil
	}
	if err := f.store.SaveCursor(ctx, f.consumer, seq); err != nil {
		return err
	}
	f.acked = seq
	return nil
}
