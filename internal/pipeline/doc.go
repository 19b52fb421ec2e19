// Package pipeline runs activity requests end to end: the engine's state
// write, then the side-effect stage (views and notices).
//
// Both write paths meet here. Direct requests go through Handle, which
// applies the activity and dispatches its side effects. Requests replayed
// by the sync reconciler carry the document another writer already
// committed; Handle skips the state write for those and dispatches side
// effects only.
//
// The side-effect ledger in the store makes dispatch exactly-once per
// activity entry: a slot keyed by (bounty id, activity index) is claimed
// before anything is sent, and a lost claim means another path already
// sent it.
package pipeline
