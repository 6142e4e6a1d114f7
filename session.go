// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package corefs

import "io/fs"

// ErrSlot holds the last error a Session observed, the Go realization of
// a process-wide (or task-local) last-error slot. Every public
// operation here already returns its error directly; ErrSlot exists so a
// caller ported from a save/restore-error-state style of programming
// (the GUI shell, the Dokan binding) can isolate a sub-operation's failure
// without it leaking into the caller's own error state.
type ErrSlot struct {
	err error
}

// Err reports the last error recorded by Set, or nil if none (or if
// cleared by Clear).
func (s *ErrSlot) Err() error { return s.err }

// Set records err, which may be nil to clear the slot.
func (s *ErrSlot) Set(err error) { s.err = err }

// Clear is shorthand for Set(nil).
func (s *ErrSlot) Clear() { s.err = nil }

// Session is a task-local handle on an FS: its own ErrSlot, isolated from
// any other Session over the same FS. The loopback table deliberately does
// NOT live here — named devices stay visible across every Session of one
// FS, only error state is per-Session.
type Session struct {
	fsys *FS
	Err  ErrSlot
}

// NewSession opens a Session over fsys. Callers that never need save/restore
// error-state semantics can ignore Session entirely and call FS's methods
// and fs.FS interface directly; Session is an additive convenience, not a
// required entry point.
func (fsys *FS) NewSession() *Session {
	return &Session{fsys: fsys}
}

// Save returns the current error state, for a caller about to run a
// sub-operation it wants isolated; restore the result with Restore.
func (s *Session) Save() ErrSlot { return s.Err }

// Restore reinstates a previously Saved error state, discarding whatever
// a sub-operation set in the meantime.
func (s *Session) Restore(saved ErrSlot) { s.Err = saved }

// run records err (possibly nil) into the session's slot and returns it
// unchanged, letting a Session-based call site both propagate an error to
// its caller and leave it observable via Err for code that only checks
// the slot afterward.
func (s *Session) run(err error) error {
	s.Err.Set(err)
	return err
}

// Open is fs.FS Open through the session's error slot.
func (s *Session) Open(name string) (fs.File, error) {
	f, err := s.fsys.Open(name)
	return f, s.run(err)
}

// ReadDir is fs.ReadDirFS ReadDir through the session's error slot.
func (s *Session) ReadDir(name string) ([]fs.DirEntry, error) {
	ents, err := s.fsys.ReadDir(name)
	return ents, s.run(err)
}

// MountDevice is FS.MountDevice through the session's error slot.
func (s *Session) MountDevice(name string) (fs.FS, error) {
	m, err := s.fsys.MountDevice(name)
	return m, s.run(err)
}

// DeleteLoopback is FS.DeleteLoopback through the session's error slot.
func (s *Session) DeleteLoopback(name string) error {
	return s.run(s.fsys.DeleteLoopback(name))
}
