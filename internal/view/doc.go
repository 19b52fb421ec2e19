// Package view defines the outward side of a transition: renderings of a
// bounty per audience (Projector) and direct messages to people (Notifier).
//
// View pointers stored on a bounty are weak references. A rendering may be
// deleted by a user without the store knowing; a Projector that cannot find
// the rendering behind a pointer logs it and renders afresh instead of
// failing. A missing view never fails a transition that is already
// committed.
package view
