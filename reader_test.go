package pyrepl

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testConsole is a scripted in-memory console: events are queued up front,
// refreshes record the virtual screen.
type testConsole struct {
	width, height int
	events        []Event
	sizes         [][2]int // applied, in order, as resize events are popped

	screen    []string
	cx, cy    int
	refreshes int
	beeps     int
	prepares  int
	restores  int
	finishes  int
}

var _ Console = (*testConsole)(nil)

func newTestConsole(width, height int) *testConsole {
	return &testConsole{width: width, height: height}
}

func (c *testConsole) push(events ...Event) {
	c.events = append(c.events, events...)
}

func (c *testConsole) pushKeys(s string) {
	for _, ch := range s {
		c.push(Event{Kind: "key", Data: string(ch), Raw: string(ch)})
	}
}

func (c *testConsole) pushResize(width, height int) {
	c.sizes = append(c.sizes, [2]int{width, height})
	c.push(Event{Kind: "resize"})
}

func (c *testConsole) Prepare() error { c.prepares++; return nil }
func (c *testConsole) Restore() error { c.restores++; return nil }

func (c *testConsole) Refresh(screen []string, cx, cy int) {
	c.screen = append([]string(nil), screen...)
	c.cx, c.cy = cx, cy
	c.refreshes++
}

func (c *testConsole) MoveCursor(x, y int) { c.cx, c.cy = x, y }

func (c *testConsole) GetEvent(block bool) (*Event, error) {
	if len(c.events) == 0 {
		if block {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, nil
	}
	e := c.events[0]
	c.events = c.events[1:]
	if e.Kind == "resize" && len(c.sizes) > 0 {
		c.width, c.height = c.sizes[0][0], c.sizes[0][1]
		c.sizes = c.sizes[1:]
	}
	return &e, nil
}

func (c *testConsole) Wait(timeout time.Duration) (bool, error) {
	return len(c.events) > 0, nil
}

func (c *testConsole) PushChar(b byte) {}

func (c *testConsole) GetPending() (*Event, error) {
	e := Event{Kind: "key"}
	for len(c.events) > 0 && c.events[0].Kind == "key" {
		e2 := c.events[0]
		c.events = c.events[1:]
		e.Data += e2.Data
		e.Raw += e2.Raw
	}
	return &e, nil
}

func (c *testConsole) ForgetInput() error    { return nil }
func (c *testConsole) Beep()                 { c.beeps++ }
func (c *testConsole) Clear()                { c.screen = nil }
func (c *testConsole) Finish()               { c.finishes++ }
func (c *testConsole) SetCursorVis(vis bool) {}
func (c *testConsole) Height() int           { return c.height }
func (c *testConsole) Width() int            { return c.width }

func newTestReader(t *testing.T, tc *testConsole, opts ...Option) *Reader {
	t.Helper()
	r, err := NewReader(tc, opts...)
	require.NoError(t, err)
	r.SetPrompts("> ", ". ", "s1> ", "s2> ")
	return r
}

func TestReadLineBasic(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)

	tc.pushKeys("hello\r")
	got, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "hello", got)

	require.Equal(t, 1, r.History().Len())
	require.Equal(t, "hello", r.History().Item(0))
	require.Equal(t, 1, tc.prepares)
	require.Equal(t, 1, tc.restores)
	require.Equal(t, 1, tc.finishes)
	require.Equal(t, []string{"> hello"}, tc.screen)
}

func TestEditingRoundTrip(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)

	// self-insert then backspace returns to the prior state.
	tc.pushKeys("a")
	tc.push(Event{Kind: "key", Data: "backspace", Raw: "\x7f"})
	tc.pushKeys("ok\r")
	got, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "ok", got)
}

func TestCursorInvariant(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)

	tc.pushKeys("ab")
	tc.push(Event{Kind: "key", Data: "left", Raw: "\x1b[D"})
	tc.push(Event{Kind: "key", Data: "left", Raw: "\x1b[D"})
	tc.push(Event{Kind: "key", Data: "left", Raw: "\x1b[D"}) // bumps the start
	tc.pushKeys("X\r")
	got, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "Xab", got)
	require.GreaterOrEqual(t, r.Pos(), 0)
	require.LessOrEqual(t, r.Pos(), len(r.buffer))
	require.Equal(t, 1, tc.beeps) // the third left reported "start of buffer"
}

// Scenario: digit-arg 3, quoted-insert ESC, accept.
func TestDigitArgQuotedInsert(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)

	tc.push(Event{Kind: "key", Data: "3", Raw: "\x1b3", Meta: true}) // M-3: digit-arg
	tc.pushKeys("\x11")                                             // C-q: quoted-insert
	tc.pushKeys("\x1b")                                             // the quoted key
	tc.pushKeys("\r")
	got, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "\x1b\x1b\x1b", got)
	require.Equal(t, []string{"> ^[^[^["}, tc.screen)
	require.Equal(t, 1, r.History().Len())
	require.Equal(t, "\x1b\x1b\x1b", r.History().Item(0))
}

// Scenario: previous-history x3 selects the oldest entry.
func TestHistoryNavigation(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)
	for _, s := range []string{"alpha", "beta", "gamma"} {
		r.History().Append(s)
	}

	tc.pushKeys("\x10\x10\x10\r") // C-p x3, enter
	got, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "alpha", got)
}

func TestHistoryBoundaries(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)
	r.History().Append("one")

	// next-history at the new-entry slot errors.
	tc.pushKeys("\x0e") // C-n
	tc.pushKeys("\r")
	_, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, 1, tc.beeps)

	// previous-history at index 0 errors.
	tc.pushKeys("\x10\x10") // C-p past the single entry
	tc.pushKeys("\r")
	_, err = r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, 2, tc.beeps)
}

// Scenario: reverse isearch for "im" lands on the last match first.
func TestReverseIsearch(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)
	for _, s := range []string{"import sys", "import os", "print(x)"} {
		r.History().Append(s)
	}

	tc.pushKeys("\x12im\r") // C-r, i, m, enter
	got, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "import os", got)
}

func TestIsearchPromptAndCancel(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)
	r.History().Append("needle in haystack")

	tc.pushKeys("abc")    // live edit first
	tc.pushKeys("\x12ne") // C-r "ne"
	tc.pushKeys("\x07")   // C-g cancels
	tc.pushKeys("\r")
	got, err := r.ReadLine()
	require.NoError(t, err)
	// Cancel restored the pre-search buffer and cursor.
	require.Equal(t, "abc", got)
}

func TestIsearchNotFound(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)
	r.History().Append("alpha")

	tc.pushKeys("\x12zq") // C-r, no entry matches "z"
	tc.pushKeys("\x07")   // cancel
	tc.pushKeys("\r")
	_, err := r.ReadLine()
	require.NoError(t, err)
	require.NotZero(t, tc.beeps)
}

// Scenario: yank-arg pulls the last word of the previous entry; repeating
// with no further entries reports an error.
func TestYankArg(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)
	r.History().Append("foo bar baz")

	tc.push(Event{Kind: "key", Data: ".", Raw: "\x1b.", Meta: true})
	tc.pushKeys("\r")
	got, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "baz", got)

	// History is now ["foo bar baz", "baz"]. A repeated M-. walks back an
	// entry each time; walking past the beginning reports an error and
	// leaves the last yank in place.
	tc.push(Event{Kind: "key", Data: ".", Raw: "\x1b.", Meta: true})
	tc.push(Event{Kind: "key", Data: ".", Raw: "\x1b.", Meta: true})
	tc.push(Event{Kind: "key", Data: ".", Raw: "\x1b.", Meta: true})
	tc.pushKeys("\r")
	got, err = r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "baz", got)
	require.NotZero(t, tc.beeps)
}

// Scenario: multi-line input via a more-lines hook.
func TestMultilineAccept(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc, WithMoreLines(func(text string) bool {
		return len(text) > 0 && text[len(text)-1] == ':'
	}))
	r.SetPrompts(">>> ", "... ", ">>> ", "... ")

	tc.pushKeys("if x:\r    pass\r")
	got, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "if x:\n    pass", got)
	require.Equal(t, []string{">>> if x:", "...     pass"}, tc.screen)
}

// Scenario: a resize to width 4 rewraps with the continuation marker at
// column 3 and the cursor on the last continuation row.
func TestResizeRewrap(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)

	tc.pushKeys("abcd")
	tc.pushResize(4, 25)
	tc.pushKeys("\r")
	got, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "abcd", got)
	require.Equal(t, []string{`> a\`, `bc\`, "d"}, tc.screen)
	require.Equal(t, 1, tc.cx)
	require.Equal(t, 2, tc.cy)
}

func TestInterruptRestores(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)

	tc.pushKeys("abc\x03") // C-c
	_, err := r.ReadLine()
	require.ErrorIs(t, err, ErrInterrupted)
	require.Equal(t, 1, tc.restores)
}

func TestCtrlDEndOfInput(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)

	tc.pushKeys("\x04") // C-d on empty buffer
	_, err := r.ReadLine()
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 1, tc.restores)

	// C-d with content deletes instead.
	tc.pushKeys("ab")
	tc.push(Event{Kind: "key", Data: "left", Raw: "\x1b[D"})
	tc.pushKeys("\x04\r")
	got, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "a", got)
}

func TestKillYank(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)

	tc.pushKeys("hello world\x17") // C-w kills "world"
	tc.pushKeys("\x19\r")          // C-y yanks it back
	got, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "hello world", got)
}

func TestKillLineAndDiscard(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)

	tc.pushKeys("hello world")
	tc.push(Event{Kind: "key", Data: "home", Raw: "\x1b[H"})
	tc.pushKeys("\x0b") // C-k kills to end of line
	tc.pushKeys("\x19") // C-y yanks back
	tc.pushKeys("\x15") // C-u discards back to start
	tc.pushKeys("again\r")
	got, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "again", got)
}

func TestTransposeChars(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)

	tc.pushKeys("ab\x14\r") // C-t at end swaps the final pair
	got, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "ba", got)
}

func TestWordMotionSyntax(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc, WithWordCharacters("_"))

	tc.pushKeys("foo_bar baz")
	tc.push(Event{Kind: "key", Data: "b", Raw: "\x1bb", Meta: true}) // M-b
	tc.push(Event{Kind: "key", Data: "b", Raw: "\x1bb", Meta: true}) // M-b
	tc.pushKeys("X\r")
	got, err := r.ReadLine()
	require.NoError(t, err)
	// With '_' in the word class, the second M-b jumps to the start of
	// "foo_bar" as one word.
	require.Equal(t, "Xfoo_bar baz", got)
}

func TestOperateAndGetNext(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)
	for _, s := range []string{"first", "second"} {
		r.History().Append(s)
	}

	// Select "first", accept it with C-o.
	tc.pushKeys("\x10\x10") // C-p C-p
	tc.pushKeys("\x0f")     // C-o
	got, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "first", got)

	// The next readline starts pre-loaded with the following entry.
	tc.pushKeys("\r")
	got, err = r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "second", got)
}

func TestTransientHistoryEdits(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)
	for _, s := range []string{"one", "two"} {
		r.History().Append(s)
	}

	// Edit entry "one", move away, come back: the edit survives the
	// session. Accepting a different entry commits the edit.
	tc.pushKeys("\x10\x10")  // C-p C-p -> "one"
	tc.pushKeys("X")         // edit to "oneX"
	tc.pushKeys("\x0e")      // C-n -> "two"
	tc.pushKeys("\x10")      // C-p -> transient "oneX"
	tc.pushKeys("\x0e")      // C-n -> "two"
	tc.pushKeys("\r")        // accept "two"
	got, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "two", got)
	require.Equal(t, "oneX", r.History().Item(0))
	// The accepted entry is appended; adjacent duplicate semantics are the
	// caller's concern.
	require.Equal(t, "two", r.History().Item(2))
}

func TestRestoreHistoryCommand(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)
	r.History().Append("pristine")

	tc.pushKeys("\x10")                                             // C-p
	tc.pushKeys("XYZ")                                              // dirty the entry
	tc.push(Event{Kind: "key", Data: "r", Raw: "\x1br", Meta: true}) // M-r restores
	tc.pushKeys("\r")
	got, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "pristine", got)
}

func TestHelpMessageTransient(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)

	tc.push(Event{Kind: "key", Data: "f1", Raw: "\x1bOP"})
	tc.pushKeys("a\r")
	_, err := r.ReadLine()
	require.NoError(t, err)
	// After the next keystroke the help text is gone from the screen.
	require.Equal(t, []string{"> a"}, tc.screen)
}

func TestDirtyRefreshAccounting(t *testing.T) {
	tc := newTestConsole(80, 25)
	r := newTestReader(t, tc)

	tc.pushKeys("a")
	tc.push(Event{Kind: "key", Data: "left", Raw: "\x1b[D"})
	tc.pushKeys("\r")
	_, err := r.ReadLine()
	require.NoError(t, err)
	// The motion command alone does not force a repaint: only the initial
	// refresh and the insert repaint the screen.
	require.Equal(t, 2, tc.refreshes)
}
