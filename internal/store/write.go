package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/bountyboard/internal/domain"
)

// ErrDuplicateID is returned by Insert when a bounty with the same id exists.
var ErrDuplicateID = errors.New("bounty id already exists")

// Insert stores a new bounty and appends an insert change in the same
// transaction. Returns the stored id.
func (s *Store) Insert(ctx context.Context, b *domain.Bounty) (string, error) {
	doc, err := domain.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("insert bounty: %w", err)
	}
	fields, err := domain.ChangedFields(nil, doc)
	if err != nil {
		return "", fmt.Errorf("insert bounty: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", domain.NewDependencyUnavailable("insert bounty: begin tx", err)
	}
	defer tx.Rollback()

	now := s.timestamp()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO bounties
		(id, customer_id, status, parent_id, evergreen, is_parent, doc, snapshot_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		b.ID,
		b.CustomerID,
		string(b.Status),
		b.ParentID,
		b.Evergreen,
		b.IsParent,
		string(doc),
		domain.HashDocument(doc),
		b.CreatedAt.UTC().Format(timeLayout),
		now,
	)
	if err != nil {
		return "", domain.NewDependencyUnavailable("insert bounty", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return "", domain.NewDependencyUnavailable("insert bounty: rows affected", err)
	}
	if n == 0 {
		return "", fmt.Errorf("insert bounty %s: %w", b.ID, ErrDuplicateID)
	}

	if err := appendChange(ctx, tx, domain.OpInsert, b.ID, doc, fields, now); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", domain.NewDependencyUnavailable("insert bounty: commit", err)
	}
	s.broadcast()
	return b.ID, nil
}

// ConditionalUpdate replaces prev with next only if the stored document still
// matches prev. Returns the number of documents modified: 0 means the stored
// document changed since prev was read, and nothing was written.
//
// A successful write appends an update change listing the top-level fields
// that differ between prev and next.
func (s *Store) ConditionalUpdate(ctx context.Context, prev, next *domain.Bounty) (int64, error) {
	if prev.ID != next.ID {
		return 0, fmt.Errorf("conditional update: id mismatch %q != %q", prev.ID, next.ID)
	}
	prevDoc, err := domain.Marshal(prev)
	if err != nil {
		return 0, fmt.Errorf("conditional update: %w", err)
	}
	nextDoc, err := domain.Marshal(next)
	if err != nil {
		return 0, fmt.Errorf("conditional update: %w", err)
	}
	fields, err := domain.ChangedFields(prevDoc, nextDoc)
	if err != nil {
		return 0, fmt.Errorf("conditional update: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, domain.NewDependencyUnavailable("conditional update: begin tx", err)
	}
	defer tx.Rollback()

	now := s.timestamp()
	result, err := tx.ExecContext(ctx, `
		UPDATE bounties
		SET customer_id = ?, status = ?, parent_id = ?, evergreen = ?, is_parent = ?,
		    doc = ?, snapshot_hash = ?, updated_at = ?
		WHERE id = ? AND snapshot_hash = ?
	`,
		next.CustomerID,
		string(next.Status),
		next.ParentID,
		next.Evergreen,
		next.IsParent,
		string(nextDoc),
		domain.HashDocument(nextDoc),
		now,
		next.ID,
		domain.HashDocument(prevDoc),
	)
	if err != nil {
		return 0, domain.NewDependencyUnavailable("conditional update", err)
	}
	modified, err := result.RowsAffected()
	if err != nil {
		return 0, domain.NewDependencyUnavailable("conditional update: rows affected", err)
	}
	if modified == 0 {
		return 0, nil
	}

	if err := appendChange(ctx, tx, domain.OpUpdate, next.ID, nextDoc, fields, now); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, domain.NewDependencyUnavailable("conditional update: commit", err)
	}
	s.broadcast()
	return modified, nil
}

// Purge removes a bounty document outright and appends a delete change.
// Lifecycle deletion is a status; Purge is for operator cleanup only.
func (s *Store) Purge(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewDependencyUnavailable("purge bounty: begin tx", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM bounties WHERE id = ?`, id)
	if err != nil {
		return domain.NewDependencyUnavailable("purge bounty", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return domain.NewDependencyUnavailable("purge bounty: rows affected", err)
	}
	if n == 0 {
		return domain.NewNotFound(id)
	}

	if err := appendChange(ctx, tx, domain.OpDelete, id, nil, []string{}, s.timestamp()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return domain.NewDependencyUnavailable("purge bounty: commit", err)
	}
	s.broadcast()
	return nil
}

// appendChange writes one change-feed row inside tx.
func appendChange(ctx context.Context, tx *sql.Tx, op domain.Operation, id string, doc []byte, fields []string, at string) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("append change: marshal fields: %w", err)
	}
	var after sql.NullString
	if doc != nil {
		after = sql.NullString{String: string(doc), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO changes
		(operation, document_id, doc_after, changed_fields, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		string(op),
		id,
		after,
		string(fieldsJSON),
		at,
	)
	if err != nil {
		return domain.NewDependencyUnavailable("append change", err)
	}
	return nil
}

// ClaimSideEffect records that the side effects of one activity entry are
// being dispatched. Returns inserted=false if the entry was already claimed,
// in which case the caller must not dispatch again.
func (s *Store) ClaimSideEffect(
	ctx context.Context,
	bountyID string,
	activityIndex int,
	activity domain.Activity,
	origin domain.Origin,
) (inserted bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO side_effects
		(bounty_id, activity_index, activity, origin, dispatched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(bounty_id, activity_index) DO NOTHING
	`,
		bountyID,
		activityIndex,
		string(activity),
		origin.String(),
		s.timestamp(),
	)
	if err != nil {
		return false, domain.NewDependencyUnavailable("claim side effect", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, domain.NewDependencyUnavailable("claim side effect: rows affected", err)
	}
	return n > 0, nil
}

// ReleaseSideEffect drops a claim whose dispatch failed, so a later replay
// of the same activity entry may try again.
func (s *Store) ReleaseSideEffect(ctx context.Context, bountyID string, activityIndex int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM side_effects WHERE bounty_id = ? AND activity_index = ?
	`, bountyID, activityIndex)
	if err != nil {
		return domain.NewDependencyUnavailable("release side effect", err)
	}
	return nil
}

// SaveCursor persists the last processed change sequence for a consumer.
// The cursor never moves backwards.
func (s *Store) SaveCursor(ctx context.Context, consumer string, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feed_cursors (consumer, seq, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(consumer) DO UPDATE
		SET seq = excluded.seq, updated_at = excluded.updated_at
		WHERE excluded.seq > feed_cursors.seq
	`, consumer, seq, s.timestamp())
	if err != nil {
		return domain.NewDependencyUnavailable("save cursor", err)
	}
	return nil
}
