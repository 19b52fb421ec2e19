package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/bountyboard/internal/domain"
)

const timeLayout = time.RFC3339Nano

// DefaultQueryLimit caps Query when the caller passes a non-positive limit.
const DefaultQueryLimit = 100

// Get reads one bounty by id.
func (s *Store) Get(ctx context.Context, id string) (*domain.Bounty, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM bounties WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound(id)
	}
	if err != nil {
		return nil, domain.NewDependencyUnavailable("read bounty", err)
	}
	b, err := domain.Unmarshal([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("read bounty %s: %w", id, err)
	}
	return b, nil
}

// Query returns the bounties matching f, oldest first. Results are ordered
// by created_at then id so equal inputs always list in the same order.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) Query(ctx context.Context, f domain.Filter, limit int) ([]*domain.Bounty, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	var (
		where []string
		args  []any
	)
	if f.CustomerID != "" {
		where = append(where, "customer_id = ?")
		args = append(args, f.CustomerID)
	}
	if f.ParentID != "" {
		where = append(where, "parent_id = ?")
		args = append(args, f.ParentID)
	}
	if f.ParentsOnly {
		where = append(where, "is_parent = 1")
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}

	query := "SELECT doc FROM bounties"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id COLLATE BINARY ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewDependencyUnavailable("query bounties", err)
	}
	defer rows.Close()

	out := []*domain.Bounty{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, domain.NewDependencyUnavailable("scan bounty", err)
		}
		b, err := domain.Unmarshal([]byte(doc))
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewDependencyUnavailable("iterate bounties", err)
	}
	return out, nil
}

// ReadChanges returns up to limit changes with seq greater than after, in
// commit order.
func (s *Store) ReadChanges(ctx context.Context, after int64, limit int) ([]domain.Change, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, operation, document_id, doc_after, changed_fields, recorded_at
		FROM changes
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, after, limit)
	if err != nil {
		return nil, domain.NewDependencyUnavailable("read changes", err)
	}
	defer rows.Close()

	out := []domain.Change{}
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewDependencyUnavailable("iterate changes", err)
	}
	return out, nil
}

// ChangesFor returns every change recorded for one bounty, in commit order.
func (s *Store) ChangesFor(ctx context.Context, id string) ([]domain.Change, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, operation, document_id, doc_after, changed_fields, recorded_at
		FROM changes
		WHERE document_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, domain.NewDependencyUnavailable("read changes", err)
	}
	defer rows.Close()

	out := []domain.Change{}
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewDependencyUnavailable("iterate changes", err)
	}
	return out, nil
}

// LatestSeq returns the sequence of the newest change, or 0.
func (s *Store) LatestSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM changes`).Scan(&seq); err != nil {
		return 0, domain.NewDependencyUnavailable("latest change", err)
	}
	return seq.Int64, nil
}

// Cursor returns the saved feed position for a consumer, or 0.
func (s *Store) Cursor(ctx context.Context, consumer string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT seq FROM feed_cursors WHERE consumer = ?`, consumer).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, domain.NewDependencyUnavailable("read cursor", err)
	}
	return seq, nil
}

// SideEffectClaimed reports whether an activity entry's side effects were
// already dispatched.
func (s *Store) SideEffectClaimed(ctx context.Context, bountyID string, activityIndex int) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM side_effects
		WHERE bounty_id = ? AND activity_index = ?
	`, bountyID, activityIndex).Scan(&count)
	if err != nil {
		return false, domain.NewDependencyUnavailable("check side effect", err)
	}
	return count > 0, nil
}

// scanChange scans one row of the changes table. A row whose stored JSON
// does not decode is returned with DecodeErr set instead of failing the
// batch, so one bad record cannot block the feed behind it.
func scanChange(rows *sql.Rows) (domain.Change, error) {
	var (
		c          domain.Change
		op         string
		after      sql.NullString
		fieldsJSON string
		recordedAt string
	)
	if err := rows.Scan(&c.Seq, &op, &c.DocumentID, &after, &fieldsJSON, &recordedAt); err != nil {
		return c, domain.NewDependencyUnavailable("scan change", err)
	}
	c.Operation = domain.Operation(op)
	if after.Valid {
		b, err := domain.Unmarshal([]byte(after.String))
		if err != nil {
			c.DecodeErr = fmt.Errorf("change %d: %w", c.Seq, err)
			return c, nil
		}
		c.FullDocument = b
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &c.ChangedFields); err != nil {
		c.DecodeErr = fmt.Errorf("change %d: decode changed fields: %w", c.Seq, err)
		return c, nil
	}
	t, err := time.Parse(timeLayout, recordedAt)
	if err != nil {
		c.DecodeErr = fmt.Errorf("change %d: parse recorded_at: %w", c.Seq, err)
		return c, nil
	}
	c.RecordedAt = t
	return c, nil
}
