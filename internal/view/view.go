package view

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/bountyboard/internal/domain"
)

// ErrViewMissing is returned by adapters when the rendering behind a pointer
// no longer exists.
var ErrViewMissing = errors.New("view no longer exists")

// Update asks a Projector to create, update or retire one audience's
// rendering of a bounty.
type Update struct {
	BountyID   string
	CustomerID string
	Audience   domain.Audience
	Status     domain.Status
	Summary    Summary

	// Pointer is the previously stored location, or nil if none.
	Pointer *domain.ViewPointer

	// Retire removes the rendering instead of updating it.
	Retire bool
}

// Projector maintains outward renderings.
type Projector interface {
	// Project applies u and returns the rendering's location, or nil after
	// a retire.
	Project(ctx context.Context, u Update) (*domain.ViewPointer, error)
}

// Notice is a direct message about one activity.
type Notice struct {
	BountyID   string
	CustomerID string
	Activity   domain.Activity
	Recipient  domain.ActorRef
	Message    string
	Summary    Summary
}

// Notifier delivers notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// Tolerant wraps an adapter Projector so ErrViewMissing never escapes: a
// missing rendering is logged and, unless the update retires it, rendered
// again from scratch.
func Tolerant(p Projector, logger *slog.Logger) Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &tolerant{next: p, logger: logger}
}

type tolerant struct {
	next   Projector
	logger *slog.Logger
}

func (t *tolerant) Project(ctx context.Context, u Update) (*domain.ViewPointer, error) {
	ptr, err := t.next.Project(ctx, u)
	if !errors.Is(err, ErrViewMissing) {
		return ptr, err
	}

	t.logger.Warn("view missing",
		"bounty_id", u.BountyID,
		"audience", u.Audience,
		"pointer", pointerString(u.Pointer),
	)
	if u.Retire {
		return nil, nil
	}
	u.Pointer = nil
	return t.next.Project(ctx, u)
}

func pointerString(p *domain.ViewPointer) string {
	if p == nil {
		return ""
	}
	return p.ChannelID + "/" + p.MessageID
}
