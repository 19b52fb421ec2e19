// Package domain defines the bounty data model shared by every component.
//
// A Bounty is a single JSON document. Its lifecycle is recorded twice:
//
//   - StatusHistory: one entry per status change, in chronological order.
//   - ActivityHistory: one entry per activity, tagged with the Origin that
//     performed it.
//
// The last ActivityHistory entry is the only signal the sync reconciler uses
// to tell its own writes apart from writes made by another client.
//
// # Snapshots
//
// Conditional writes compare the full previous document. The store does this
// through SnapshotHash, a SHA-256 digest over the document's JSON encoding
// with domain separation, so two snapshots match only when every field does.
package domain
