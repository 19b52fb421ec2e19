package view

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/bountyboard/internal/domain"
)

// Recorder is an in-memory Projector and Notifier that remembers every call.
// Renderings can be deleted behind its back with Drop, which makes the next
// update of that pointer fail with ErrViewMissing as a chat adapter would.
//
// Thread-safety: Recorder is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	next     int
	live     map[domain.ViewPointer]bool
	updates  []Update
	notices  []Notice
	failNext error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{live: make(map[domain.ViewPointer]bool)}
}

// Project records u. A pointer that was dropped yields ErrViewMissing.
func (r *Recorder) Project(_ context.Context, u Update) (*domain.ViewPointer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failNext; err != nil {
		r.failNext = nil
		return nil, err
	}
	r.updates = append(r.updates, u)

	if u.Pointer != nil && !r.live[*u.Pointer] {
		return nil, ErrViewMissing
	}
	if u.Retire {
		if u.Pointer != nil {
			delete(r.live, *u.Pointer)
		}
		return nil, nil
	}
	if u.Pointer != nil {
		return u.Pointer, nil
	}
	r.next++
	ptr := domain.ViewPointer{
		ChannelID: string(u.Audience),
		MessageID: fmt.Sprintf("m-%d", r.next),
	}
	r.live[ptr] = true
	return &ptr, nil
}

// Notify records n.
func (r *Recorder) Notify(_ context.Context, n Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return nil
}

// Drop deletes the rendering behind p, as a user deleting a message would.
func (r *Recorder) Drop(p domain.ViewPointer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, p)
}

// FailNext makes the next Project call return err.
func (r *Recorder) FailNext(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = err
}

// Updates returns a copy of every recorded update.
func (r *Recorder) Updates() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

// Notices returns a copy of every recorded notice.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// UpdatesFor returns the recorded updates of one bounty.
func (r *Recorder) UpdatesFor(bountyID string) []Update {
	var out []Update
	for _, u := range r.Updates() {
		if u.BountyID == bountyID {
			out = append(out, u)
		}
	}
	return out
}

// Live reports whether a rendering exists at p.
func (r *Recorder) Live(p domain.ViewPointer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live[p]
}

// Reset forgets recorded calls. Live renderings are kept.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = nil
	r.notices = nil
}
