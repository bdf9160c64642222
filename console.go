package pyrepl

import (
	"errors"
	"time"
)

// Event is a logical input event produced by the console's event queue.
type Event struct {
	// Kind is one of "key", "resize", "scroll", or "repaint".
	Kind string
	// Data carries the decoded payload for key events: a single character,
	// or a symbolic key name such as "up" or "delete".
	Data string
	// Raw holds the bytes that produced the event, decoded as text.
	Raw string
	// Meta is set on key events typed with the meta (alt) modifier. The
	// keymap translator treats a meta key as an ESC prefix on Data.
	Meta bool
}

// ErrInvalidTerminal is returned when the terminal lacks a capability the
// console cannot operate without.
var ErrInvalidTerminal = errors.New("invalid terminal")

// ErrInterrupted is returned by ReadLine when the input was interrupted
// (Control-C).
var ErrInterrupted = errors.New("interrupted")

// Console abstracts the terminal a Reader edits on. The one real
// implementation is UnixConsole; tests substitute their own.
//
// Prepare and Restore bracket each ReadLine call. Restore must undo
// everything Prepare did, on every exit path.
type Console interface {
	// Prepare puts the terminal into raw mode and resets the physical
	// screen model.
	Prepare() error
	// Restore undoes Prepare.
	Restore() error

	// Refresh transforms the physical screen into the supplied virtual
	// screen, one string per row, and places the cursor at (cx, cy) in
	// screen coordinates.
	Refresh(screen []string, cx, cy int)
	// MoveCursor moves the terminal cursor. Moving outside the visible
	// window queues a scroll event instead.
	MoveCursor(x, y int)

	// GetEvent returns the next event, reading from the terminal as
	// needed. With block=false it returns nil when no event is ready.
	GetEvent(block bool) (*Event, error)
	// Wait blocks until input is readable or the timeout elapses. A zero
	// timeout waits forever. It reports whether input became readable.
	Wait(timeout time.Duration) (bool, error)
	// PushChar feeds a single byte into the event queue, as if it had
	// been read from the terminal.
	PushChar(b byte)
	// GetPending drains the queued key events and any unread terminal
	// input into a single key event.
	GetPending() (*Event, error)
	// ForgetInput discards terminal input that has not been read yet.
	ForgetInput() error

	Beep()
	// Clear erases the terminal and forgets the physical screen contents.
	Clear()
	// Finish moves the cursor below the last rendered line, for the host
	// to resume normal output.
	Finish()
	SetCursorVis(vis bool)

	Height() int
	Width() int
}
