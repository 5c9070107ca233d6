// Package store persists drafts, scheduled items and the failed holding
// area in SQLite.
//
// Three collections:
//   - drafts: pending content awaiting explicit publish or delete
//   - scheduled: time-triggered items, claimed by the scheduler before
//     processing
//   - failed: scheduled items that errored during publish, held for manual
//     review (never auto-retried)
package store
