// Package content defines the closed set of publishable payload shapes and
// the identifier/trigger-time conventions shared by the stores and the
// publication engine.
package content
