// Package scheduler runs the single background loop that discovers due
// scheduled items and drives them through the publication engine.
//
// One cooperative tick at a fixed period; due items are claimed before
// processing and handled sequentially. Two ticks never run concurrently,
// and cancellation is observed between ticks and before each claim, never
// mid-publish.
package scheduler
