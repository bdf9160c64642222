package pyrepl

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// outChunk is one unit of buffered terminal output. Capability output is
// flagged so the flush path can apply terminfo delay padding to it.
type outChunk struct {
	data   []byte
	isCode bool
}

type consoleCaps struct {
	bel, clear, cup, el          []byte
	civis, cnorm                 []byte
	cub, cub1, cud, cud1         []byte
	cuf, cuf1, cuu, cuu1         []byte
	dch, dch1, hpa, ich, ich1    []byte
	ind, pad, ri, rmkx, smkx     []byte
}

// UnixConsole drives a POSIX terminal using terminfo capabilities. It owns
// the terminal fds between Prepare and Restore: raw mode, the SIGWINCH
// disposition, and the physical screen contents.
type UnixConsole struct {
	inFD, outFD int
	// outW, when set, receives output instead of outFD. Primarily useful
	// for tests.
	outW   io.Writer
	term   string
	ti     Terminfo
	useHPA bool

	caps consoleCaps
	// dch1 and ich1 resolve to the single-character capability if present,
	// else the parameterised one with a count of 1.
	dch1, ich1 []byte

	moveX func(x int)
	moveY func(y int)
	move  func(x, y int)

	queue  *eventQueue
	buffer []outChunk

	screen        []string
	height, width int
	posx, posy    int
	offset        int
	goneTall      bool
	cursorVisible bool

	savedTermios *unix.Termios
	sigCh        chan os.Signal
}

var delayProg = regexp.MustCompile(`\$<([0-9]+)((?:/|\*){0,2})>`)

var _ Console = (*UnixConsole)(nil)

// NewUnixConsole creates a console on the given file descriptors (typically
// stdin and stdout). It fails with ErrInvalidTerminal if the terminal lacks
// the bel, clear, cup, or el capabilities, or has no usable cursor motion.
func NewUnixConsole(opts ...ConsoleOption) (*UnixConsole, error) {
	c := &UnixConsole{
		inFD:          0,
		outFD:         1,
		term:          os.Getenv("TERM"),
		ti:            DefaultTerminfo(),
		queue:         newEventQueue(),
		cursorVisible: true,
		sigCh:         make(chan os.Signal, 1),
	}
	for _, opt := range opts {
		opt.applyConsole(c)
	}

	if err := c.ti.Setup(c.term); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTerminal, err)
	}

	required := []struct {
		name string
		dst  *[]byte
	}{
		{"bel", &c.caps.bel},
		{"clear", &c.caps.clear},
		{"cup", &c.caps.cup},
		{"el", &c.caps.el},
	}
	for _, r := range required {
		if *r.dst = c.ti.GetStr(r.name); *r.dst == nil {
			return nil, fmt.Errorf("%w: terminal doesn't have the required %q capability",
				ErrInvalidTerminal, r.name)
		}
	}

	optional := []struct {
		name string
		dst  *[]byte
	}{
		{"civis", &c.caps.civis}, {"cnorm", &c.caps.cnorm},
		{"cub", &c.caps.cub}, {"cub1", &c.caps.cub1},
		{"cud", &c.caps.cud}, {"cud1", &c.caps.cud1},
		{"cuf", &c.caps.cuf}, {"cuf1", &c.caps.cuf1},
		{"cuu", &c.caps.cuu}, {"cuu1", &c.caps.cuu1},
		{"dch", &c.caps.dch}, {"dch1", &c.caps.dch1},
		{"hpa", &c.caps.hpa},
		{"ich", &c.caps.ich}, {"ich1", &c.caps.ich1},
		{"ind", &c.caps.ind}, {"pad", &c.caps.pad},
		{"ri", &c.caps.ri},
		{"rmkx", &c.caps.rmkx}, {"smkx", &c.caps.smkx},
	}
	for _, o := range optional {
		*o.dst = c.ti.GetStr(o.name)
	}

	// Work out how we're going to sling the cursor around. hpa doesn't
	// work in windows telnet, so it stays behind an option.
	switch {
	case c.useHPA && c.caps.hpa != nil:
		c.moveX = c.moveXHPA
	case c.caps.cub != nil && c.caps.cuf != nil:
		c.moveX = c.moveXCubCuf
	case c.caps.cub1 != nil && c.caps.cuf1 != nil:
		c.moveX = c.moveXCub1Cuf1
	default:
		return nil, fmt.Errorf("%w: insufficient terminal (horizontal)", ErrInvalidTerminal)
	}
	switch {
	case c.caps.cuu != nil && c.caps.cud != nil:
		c.moveY = c.moveYCuuCud
	case c.caps.cuu1 != nil && c.caps.cud1 != nil:
		c.moveY = c.moveYCuu1Cud1
	default:
		return nil, fmt.Errorf("%w: insufficient terminal (vertical)", ErrInvalidTerminal)
	}

	switch {
	case c.caps.dch1 != nil:
		c.dch1 = c.caps.dch1
	case c.caps.dch != nil:
		c.dch1 = c.ti.Parm(c.caps.dch, 1)
	}
	switch {
	case c.caps.ich1 != nil:
		c.ich1 = c.caps.ich1
	case c.caps.ich != nil:
		c.ich1 = c.ti.Parm(c.caps.ich, 1)
	}

	c.move = c.moveShort
	c.height, c.width = c.getHeightWidth()
	return c, nil
}

func (c *UnixConsole) Height() int { return c.height }
func (c *UnixConsole) Width() int  { return c.width }

// Prepare switches the terminal to raw mode, arms the resize handler, and
// resets the physical screen model.
func (c *UnixConsole) Prepare() error {
	saved, err := unix.IoctlGetTermios(c.inFD, ioctlReadTermios)
	if err != nil {
		return fmt.Errorf("tcgetattr: %w", err)
	}
	c.savedTermios = saved

	raw := *saved
	raw.Iflag |= unix.ICRNL
	raw.Iflag &^= unix.BRKINT | unix.INPCK | unix.ISTRIP | unix.IXON
	raw.Cflag &^= unix.CSIZE | unix.PARENB
	raw.Cflag |= unix.CS8
	raw.Lflag &^= unix.ICANON | unix.ECHO | unix.IEXTEN | unix.ISIG
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(c.inFD, ioctlWriteTermios, &raw); err != nil {
		return fmt.Errorf("tcsetattr: %w", err)
	}

	c.screen = nil
	c.height, c.width = c.getHeightWidth()
	c.buffer = nil
	c.posx, c.posy = 0, 0
	c.goneTall = false
	c.move = c.moveShort
	c.offset = 0

	c.maybeWriteCode(c.caps.smkx)

	signal.Notify(c.sigCh, syscall.SIGWINCH)
	return nil
}

// Restore undoes Prepare: keypad mode, termios state, and the SIGWINCH
// disposition.
func (c *UnixConsole) Restore() error {
	signal.Stop(c.sigCh)
	c.maybeWriteCode(c.caps.rmkx)
	if err := c.flushOutput(); err != nil {
		return err
	}
	if c.savedTermios != nil {
		if err := unix.IoctlSetTermios(c.inFD, ioctlWriteTermios, c.savedTermios); err != nil {
			return fmt.Errorf("tcsetattr: %w", err)
		}
		c.savedTermios = nil
	}
	return nil
}

// drainResize folds any pending SIGWINCH into the event queue.
func (c *UnixConsole) drainResize() {
	for {
		select {
		case <-c.sigCh:
			c.height, c.width = c.getHeightWidth()
			c.queue.insert(Event{Kind: "resize"})
		default:
			return
		}
	}
}

func (c *UnixConsole) getHeightWidth() (height, width int) {
	if l, errL := strconv.Atoi(os.Getenv("LINES")); errL == nil {
		if co, errC := strconv.Atoi(os.Getenv("COLUMNS")); errC == nil {
			return l, co
		}
	}
	ws, err := unix.IoctlGetWinsize(c.inFD, unix.TIOCGWINSZ)
	if err != nil || ws.Row == 0 {
		return 25, 80
	}
	return int(ws.Row), int(ws.Col)
}

// Refresh transforms the previous physical screen into screen, emitting the
// minimal edits it can find row by row, scrolling the hardware if the
// window offset moved and the terminal can.
func (c *UnixConsole) Refresh(screen []string, cx, cy int) {
	if !c.goneTall {
		for len(c.screen) < min(len(screen), c.height) {
			// Grow the physical screen a row at a time so the terminal
			// scrolls if it has to. The first row needs no newline: the
			// cursor already sits on it.
			if len(c.screen) > 0 {
				c.hideCursor()
				c.move(0, len(c.screen)-1)
				c.write("\n")
				c.posx, c.posy = 0, len(c.screen)
			}
			c.screen = append(c.screen, "")
		}
	} else {
		for len(c.screen) < len(screen) {
			c.screen = append(c.screen, "")
		}
	}

	if len(screen) > c.height {
		c.goneTall = true
		c.move = c.moveTall
	}

	px := c.posx
	oldOffset := c.offset
	offset := c.offset
	height := c.height

	// Make sure the cursor is on the screen, and that we're using all of
	// the screen if we can.
	if cy < offset {
		offset = cy
	} else if cy >= offset+height {
		offset = cy - height + 1
	} else if offset > 0 && len(screen) < offset+height {
		offset = max(len(screen)-height, 0)
		screen = append(screen, "")
	}

	oldscr := sliceRows(c.screen, oldOffset, oldOffset+height)
	newscr := sliceRows(screen, offset, offset+height)

	// Use hardware scrolling if we have it.
	if oldOffset > offset && c.caps.ri != nil {
		c.hideCursor()
		c.writeCode(c.caps.cup, 0, 0)
		c.posx, c.posy = 0, oldOffset
		for i := 0; i < oldOffset-offset; i++ {
			c.writeCode(c.caps.ri)
			oldscr = append([]string{""}, oldscr[:len(oldscr)-1]...)
		}
	} else if oldOffset < offset && c.caps.ind != nil {
		c.hideCursor()
		c.writeCode(c.caps.cup, c.height-1, 0)
		c.posx, c.posy = 0, oldOffset+c.height-1
		for i := 0; i < offset-oldOffset; i++ {
			c.writeCode(c.caps.ind)
			oldscr = append(oldscr[1:], "")
		}
	}

	c.offset = offset

	for i := 0; i < min(len(oldscr), len(newscr)); i++ {
		if oldscr[i] != newscr[i] {
			c.writeChangedLine(offset+i, oldscr[i], newscr[i], px)
		}
	}

	for y := len(newscr); y < len(oldscr); y++ {
		c.hideCursor()
		c.move(0, offset+y)
		c.posx, c.posy = 0, offset+y
		c.writeCode(c.caps.el)
	}

	c.showCursor()

	c.screen = append([]string(nil), screen...)
	c.MoveCursor(cx, cy)
	_ = c.flushOutput()
}

func sliceRows(rows []string, lo, hi int) []string {
	lo = min(max(lo, 0), len(rows))
	hi = min(max(hi, lo), len(rows))
	return append([]string(nil), rows[lo:hi]...)
}

// runeSlice indexes a rune slice with out-of-range clamping.
func runeSlice(r []rune, lo, hi int) string {
	lo = min(max(lo, 0), len(r))
	hi = min(max(hi, lo), len(r))
	return string(r[lo:hi])
}

func (c *UnixConsole) writeChangedLine(y int, oldline, newline string, px int) {
	oldr := []rune(oldline)
	newr := []rune(newline)

	// Reuse the oldline as much as possible, but stop as soon as we hit an
	// escape: it might be the start of a sequence the hardware swallowed,
	// so nothing after it is trustworthy.
	x := 0
	minlen := min(len(oldr), len(newr))
	for x < minlen && oldr[x] == newr[x] && newr[x] != '\x1b' {
		x++
	}

	switch {
	case runeSlice(oldr, x, len(oldr)) == runeSlice(newr, x+1, len(newr)) && c.ich1 != nil:
		// A single character was inserted at x. If the cursor already sits
		// between px and x on this row and the suffix match extends back to
		// px, rewind to px and avoid the motion.
		if y == c.posy && x > c.posx && runeSlice(oldr, px, x) == runeSlice(newr, px+1, x+1) {
			x = px
		}
		c.move(x, y)
		c.writeCode(c.ich1)
		c.write(string(newr[x]))
		c.posx, c.posy = x+1, y

	case x < minlen && runeSlice(oldr, x+1, len(oldr)) == runeSlice(newr, x+1, len(newr)):
		// A single character changed in place.
		c.move(x, y)
		c.write(string(newr[x]))
		c.posx, c.posy = x+1, y

	case c.dch1 != nil && c.ich1 != nil && len(newr) == c.width &&
		x < len(newr)-2 && len(oldr) >= 2 &&
		runeSlice(newr, x+1, len(newr)-1) == runeSlice(oldr, x, len(oldr)-2):
		// A rotation at the right margin: delete at the edge, insert at x.
		c.hideCursor()
		c.move(c.width-2, y)
		c.posx, c.posy = c.width-2, y
		c.writeCode(c.dch1)
		c.move(x, y)
		c.writeCode(c.ich1)
		c.write(string(newr[x]))
		c.posx, c.posy = x+1, y

	default:
		c.hideCursor()
		c.move(x, y)
		if len(oldr) > len(newr) {
			c.writeCode(c.caps.el)
		}
		c.write(string(newr[x:]))
		c.posx, c.posy = len(newr), y
	}

	if strings.ContainsRune(newline, '\x1b') {
		// Escape sequences are present, so nothing can be assumed about
		// where the cursor ended up. The left margin is a known position.
		c.MoveCursor(0, y)
	}
}

func (c *UnixConsole) write(text string) {
	c.buffer = append(c.buffer, outChunk{data: []byte(text)})
}

func (c *UnixConsole) writeCode(cap []byte, args ...int) {
	c.buffer = append(c.buffer, outChunk{data: c.ti.Parm(cap, args...), isCode: true})
}

func (c *UnixConsole) maybeWriteCode(cap []byte, args ...int) {
	if cap != nil {
		c.writeCode(cap, args...)
	}
}

func (c *UnixConsole) moveYCuu1Cud1(y int) {
	dy := y - c.posy
	if dy > 0 {
		c.writeCode(bytes.Repeat(c.caps.cud1, dy))
	} else if dy < 0 {
		c.writeCode(bytes.Repeat(c.caps.cuu1, -dy))
	}
}

func (c *UnixConsole) moveYCuuCud(y int) {
	dy := y - c.posy
	if dy > 0 {
		c.writeCode(c.caps.cud, dy)
	} else if dy < 0 {
		c.writeCode(c.caps.cuu, -dy)
	}
}

func (c *UnixConsole) moveXHPA(x int) {
	if x != c.posx {
		c.writeCode(c.caps.hpa, x)
	}
}

func (c *UnixConsole) moveXCub1Cuf1(x int) {
	dx := x - c.posx
	if dx > 0 {
		c.writeCode(bytes.Repeat(c.caps.cuf1, dx))
	} else if dx < 0 {
		c.writeCode(bytes.Repeat(c.caps.cub1, -dx))
	}
}

func (c *UnixConsole) moveXCubCuf(x int) {
	dx := x - c.posx
	if dx > 0 {
		c.writeCode(c.caps.cuf, dx)
	} else if dx < 0 {
		c.writeCode(c.caps.cub, -dx)
	}
}

func (c *UnixConsole) moveShort(x, y int) {
	c.moveX(x)
	c.moveY(y)
}

func (c *UnixConsole) moveTall(x, y int) {
	c.writeCode(c.caps.cup, y-c.offset, x)
}

// MoveCursor places the cursor, or queues a scroll event if (x, y) lies
// outside the visible window.
func (c *UnixConsole) MoveCursor(x, y int) {
	if y < c.offset || y >= c.offset+c.height {
		c.queue.insert(Event{Kind: "scroll"})
		return
	}
	c.move(x, y)
	c.posx, c.posy = x, y
	_ = c.flushOutput()
}

// PushChar feeds one byte into the event queue.
func (c *UnixConsole) PushChar(b byte) {
	tracef("push char %q\n", b)
	c.queue.push(b)
}

// pollTick bounds how long a blocking read waits before folding pending
// resize signals into the queue.
const pollTick = 100 * time.Millisecond

func (c *UnixConsole) poll(timeout time.Duration) (bool, error) {
	ms := int(timeout / time.Millisecond)
	if timeout <= 0 {
		ms = 0
	}
	fds := []unix.PollFd{{Fd: int32(c.inFD), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, ms)
	if err == unix.EINTR {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("poll: %w", err)
	}
	return n > 0, nil
}

// GetEvent returns the next event, reading the terminal one byte at a time.
// With block=false it returns nil when no complete event is available.
func (c *UnixConsole) GetEvent(block bool) (*Event, error) {
	for c.queue.empty() {
		c.drainResize()
		if !c.queue.empty() {
			break
		}

		timeout := pollTick
		if !block {
			timeout = 0
		}
		readable, err := c.poll(timeout)
		if err != nil {
			return nil, err
		}
		if !readable {
			if !block {
				return nil, nil
			}
			continue
		}

		var b [1]byte
		n, err := unix.Read(c.inFD, b[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		if n == 0 {
			return nil, io.EOF
		}
		c.PushChar(b[0])

		if !block {
			break
		}
	}
	return c.queue.get(), nil
}

// Wait blocks until input is readable or the timeout elapses. A zero
// timeout waits forever.
func (c *UnixConsole) Wait(timeout time.Duration) (bool, error) {
	ms := -1
	if timeout > 0 {
		ms = int(timeout / time.Millisecond)
	}
	fds := []unix.PollFd{{Fd: int32(c.inFD), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, ms)
	if err == unix.EINTR {
		return !c.queue.empty(), nil
	}
	if err != nil {
		return false, fmt.Errorf("poll: %w", err)
	}
	return n > 0, nil
}

// GetPending merges all queued key events and any unread terminal input
// into one key event, without blocking.
func (c *UnixConsole) GetPending() (*Event, error) {
	e := Event{Kind: "key"}
	for !c.queue.empty() {
		e2 := c.queue.get()
		e.Data += e2.Data
		e.Raw += e2.Raw
	}

	amount, err := unix.IoctlGetInt(c.inFD, unix.FIONREAD)
	if err != nil {
		amount = 0
	}
	if amount > 0 {
		buf := make([]byte, amount)
		n, err := unix.Read(c.inFD, buf)
		if err != nil && err != unix.EINTR {
			return nil, fmt.Errorf("read: %w", err)
		}
		raw := decodeReplace(buf[:max(n, 0)])
		e.Data += raw
		e.Raw += raw
	}
	return &e, nil
}

// ForgetInput discards terminal input that has not been read yet.
func (c *UnixConsole) ForgetInput() error {
	return tcflushInput(c.inFD)
}

func (c *UnixConsole) SetCursorVis(vis bool) {
	if vis {
		c.showCursor()
	} else {
		c.hideCursor()
	}
	_ = c.flushOutput()
}

func (c *UnixConsole) hideCursor() {
	if c.cursorVisible {
		c.maybeWriteCode(c.caps.civis)
		c.cursorVisible = false
	}
}

func (c *UnixConsole) showCursor() {
	if !c.cursorVisible {
		c.maybeWriteCode(c.caps.cnorm)
		c.cursorVisible = true
	}
}

func (c *UnixConsole) flushOutput() error {
	for _, chunk := range c.buffer {
		var err error
		if chunk.isCode {
			err = c.tputs(chunk.data)
		} else {
			err = c.writeOut(chunk.data)
		}
		if err != nil {
			c.buffer = nil
			return err
		}
	}
	c.buffer = nil
	return nil
}

// tputs emits a capability string, honoring "$<NN>" delay padding: repeated
// pad characters when the terminal declares one, a sleep otherwise. A "*"
// flag scales the delay by the screen height.
func (c *UnixConsole) tputs(code []byte) error {
	for {
		m := delayProg.FindSubmatchIndex(code)
		if m == nil {
			return c.writeOut(code)
		}
		if err := c.writeOut(code[:m[0]]); err != nil {
			return err
		}
		delay, _ := strconv.Atoi(string(code[m[2]:m[3]]))
		if bytes.ContainsRune(code[m[4]:m[5]], '*') {
			delay *= c.height
		}
		code = code[m[1]:]

		if c.caps.pad != nil {
			if bps, ok := baudRates[c.outSpeed()]; ok {
				nchars := bps * delay / 1000
				if err := c.writeOut(bytes.Repeat(c.caps.pad, nchars)); err != nil {
					return err
				}
				continue
			}
		}
		time.Sleep(time.Duration(delay) * time.Millisecond)
	}
}

func (c *UnixConsole) writeOut(p []byte) error {
	if c.outW != nil {
		_, err := c.outW.Write(p)
		return err
	}
	_, err := unix.Write(c.outFD, p)
	return err
}

// Finish moves the cursor past the last non-empty line and restores normal
// line discipline output position.
func (c *UnixConsole) Finish() {
	y := len(c.screen) - 1
	for y >= 0 && c.screen[y] == "" {
		y--
	}
	c.move(0, min(y, c.height+c.offset-1))
	c.write("\n\r")
	_ = c.flushOutput()
}

func (c *UnixConsole) Beep() {
	c.maybeWriteCode(c.caps.bel)
	_ = c.flushOutput()
}

// Clear erases the terminal. The physical contents are forgotten, so the
// next refresh repaints everything.
func (c *UnixConsole) Clear() {
	c.writeCode(c.caps.clear)
	c.goneTall = true
	c.move = c.moveTall
	c.posx, c.posy = 0, 0
	c.screen = nil
}

// decodeReplace decodes bytes as UTF-8, substituting U+FFFD for invalid
// input.
func decodeReplace(p []byte) string {
	return strings.ToValidUTF8(string(p), "�")
}
