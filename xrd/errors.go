package xrd

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoActiveSources is returned when a read is submitted while every
// source has been lost.
var ErrNoActiveSources = errors.New("no active sources")

// OpenError reports a failed file open, either during construction or when
// kicking off a replacement. It carries the exact parameters attempted and
// the wire-level status.
type OpenError struct {
	Name          string
	Flags         int
	Perms         int
	Status        string
	ErrNo         int
	Code          int
	ActiveSources []string
	Err           error
}

// Error implements error.
func (e *OpenError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "open file %q (flags=0x%x, permissions=0%o): %s (errno=%d, code=%d)",
		e.Name, e.Flags, e.Perms, e.Status, e.ErrNo, e.Code)
	appendSources(&b, e.ActiveSources)
	return b.String()
}

// Unwrap returns the wire-level error, if any.
func (e *OpenError) Unwrap() error {
	return e.Err
}

// ReadError reports a read which the wire layer completed with a failure.
// The source snapshot is taken at the moment the error is constructed.
type ReadError struct {
	Name          string
	Status        string
	ErrNo         int
	Code          int
	ActiveSources []string
	Err           error
}

// Error implements error.
func (e *ReadError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "read file %q: %s (errno=%d, code=%d)",
		e.Name, e.Status, e.ErrNo, e.Code)
	appendSources(&b, e.ActiveSources)
	return b.String()
}

// Unwrap returns the wire-level error, if any.
func (e *ReadError) Unwrap() error {
	return e.Err
}

func appendSources(b *strings.Builder, sources []string) {
	for _, s := range sources {
		fmt.Fprintf(b, "; active source: %s", s)
	}
}
