// Package engine implements the bounty TransitionEngine and the evergreen
// replicator.
//
// ARCHITECTURE:
//
// Read, Validate, Conditional Write:
// Every activity against an existing bounty follows the same path:
//  1. Normalize and validate the payload (CUE schema + cross-field checks)
//  2. Read the current document
//  3. Check the activity's required status on a clone and apply its field
//     changes, appending one activityHistory entry tagged with the origin
//  4. Write the clone conditioned on the exact snapshot read in step 2
//
// A write that modifies zero documents lost a race with another writer and
// returns ConcurrentModification. The engine never retries on its own: the
// precondition itself may no longer hold, so a retry must start again from
// step 2. The pipeline package owns that bounded retry.
//
// Evergreen Replication:
// A claim against an evergreen parent inserts a derived child, attaches the
// child id to the parent (closing the parent when its claim limit is
// reached), then claims the child. The two documents are not written in one
// transaction; RepairChildren derives a parent's children from a parentId
// query and restores any child the attach step lost.
//
// Side effects (views, notifications) are not the engine's concern. Apply
// returns the written document and the index of the activity entry it
// appended, and the caller dispatches side effects for that entry.
package engine
