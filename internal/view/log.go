package view

import (
	"context"
	"log/slog"

	"github.com/roach88/bountyboard/internal/domain"
)

// LogProjector renders views to the log. It stands in for a chat adapter
// when the process runs headless, and hands out stable pointers so the
// bookkeeping path is exercised all the same.
type LogProjector struct {
	Logger *slog.Logger
}

// Project logs u and returns a pointer derived from the bounty and audience.
func (p LogProjector) Project(_ context.Context, u Update) (*domain.ViewPointer, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if u.Retire {
		logger.Info("view retired", "bounty_id", u.BountyID, "audience", u.Audience)
		return nil, nil
	}
	ptr := &domain.ViewPointer{
		ChannelID: u.CustomerID + "/" + string(u.Audience),
		MessageID: u.BountyID,
	}
	logger.Info("view rendered",
		"bounty_id", u.BountyID,
		"audience", u.Audience,
		"status", u.Status,
		"title", u.Summary.Title,
		"reward", u.Summary.Reward,
	)
	return ptr, nil
}

// LogNotifier delivers notices to the log.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs n.
func (n LogNotifier) Notify(_ context.Context, notice Notice) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notice",
		"bounty_id", notice.BountyID,
		"activity", notice.Activity,
		"recipient", notice.Recipient.ID,
		"message", notice.Message,
	)
	return nil
}
