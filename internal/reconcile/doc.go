// Package reconcile keeps the activity pipeline in step with writes made by
// other clients of the shared store.
//
// The Reconciler consumes the store's change feed strictly in order, one
// change at a time. For each change it looks at the latest activity entry of
// the document:
//
//   - entries written by this engine (OriginInternal) are ignored, which
//     stops the engine from reprocessing its own writes;
//   - updates that did not touch activityHistory carry no new activity and
//     are ignored;
//   - anything else is replayed through the pipeline's side-effect stage,
//     carrying the already-written document so no state write is repeated.
//
// One bad change never stops consumption: unrecognized activities are
// logged and dropped, and only DependencyUnavailable is retried.
package reconcile
