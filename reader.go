package pyrepl

import (
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// SyntaxClass classifies a character for word motion and kill-word commands.
type SyntaxClass int

const (
	SyntaxWhitespace SyntaxClass = iota
	SyntaxWord
	SyntaxSymbol
)

// Command is a named editing operation. Run mutates the reader through its
// primitives; KeepArg marks the numeric-prefix commands that accumulate into
// the pending argument instead of consuming it.
type Command struct {
	Run     func(r *Reader, e Event) error
	KeepArg bool
}

// Feature is a composable Reader extension. A feature owns a block of state,
// contributes key bindings and commands, and participates in the per-readline
// lifecycle.
type Feature interface {
	Bindings() []Binding
	Commands() map[string]Command
	Prepare(r *Reader) error
	Finish(r *Reader)
}

// prompter lets a feature substitute its own prompt (the isearch prompt).
type prompter interface {
	Prompt(r *Reader, lineno int, cursorOnLine bool) (string, bool)
}

// screenExtra lets a feature append transient lines below the edit area (the
// completion menu).
type screenExtra interface {
	ExtraLines(r *Reader) []string
}

// afterCommander is notified after every command dispatch.
type afterCommander interface {
	AfterCommand(r *Reader, cmd string, e Event)
}

// keySeqTimeout bounds how long the reader waits for a key sequence to be
// extended before committing an ambiguous shorter binding.
const keySeqTimeout = 50 * time.Millisecond

// Reader reads one logical input (a line, or a multi-line block) from a
// Console, providing in-place editing, history, incremental search, and
// completion. A Reader is created once per session; each ReadLine call runs
// the prepare/handle/finish/restore lifecycle.
type Reader struct {
	console Console

	buffer []rune
	pos    int
	dirty  bool

	ps1, ps2, ps3, ps4 string

	commands    map[string]Command
	keymap      []Binding
	extraKeymap []Binding
	translators []*KeymapTranslator

	features   []Feature
	history    *History
	completion *Completion

	killRing killRing

	arg      int
	argIsSet bool

	lastCommand string
	finished    bool
	msg         string

	// wordExtras extends the WORD syntax class beyond letters and digits.
	wordExtras map[rune]bool

	// moreLines, when set, enables multi-line input: accept consults it to
	// decide between finishing and inserting a newline.
	moreLines func(text string) bool

	startupHook func()
}

// NewReader creates a Reader on the console with the history and completion
// features installed.
func NewReader(console Console, opts ...Option) (*Reader, error) {
	r := &Reader{
		console:    console,
		ps1:        "->> ",
		ps2:        "/>> ",
		ps3:        "|>> ",
		ps4:        `\>> `,
		commands:   make(map[string]Command),
		wordExtras: make(map[rune]bool),
	}
	r.history = newHistory()
	r.completion = newCompletion()
	r.features = []Feature{r.history, r.completion}

	for _, opt := range opts {
		opt.apply(r)
	}

	for name, cmd := range baseCommands {
		r.registerCommand(name, cmd)
	}
	r.keymap = append(r.keymap, baseKeymap...)
	for _, f := range r.features {
		for name, cmd := range f.Commands() {
			r.registerCommand(name, cmd)
		}
		r.keymap = append(r.keymap, f.Bindings()...)
	}
	// User bindings come last so they win over the defaults.
	r.keymap = append(r.keymap, r.extraKeymap...)

	trans, err := NewKeymapTranslator(r.keymap, "invalid-key", "self-insert")
	if err != nil {
		return nil, err
	}
	r.translators = []*KeymapTranslator{trans}
	return r, nil
}

// registerCommand registers a command under both its hyphenated and
// underscored spellings.
func (r *Reader) registerCommand(name string, cmd Command) {
	r.commands[strings.ReplaceAll(name, "_", "-")] = cmd
	r.commands[strings.ReplaceAll(name, "-", "_")] = cmd
}

// SetPrompts sets the four prompt slots: ps1 for the first (or only) line,
// ps2 for continuation lines, ps3/ps4 for their isearch counterparts. Prompt
// text between \x01 and \x02 markers is treated as zero-width.
func (r *Reader) SetPrompts(ps1, ps2, ps3, ps4 string) {
	r.ps1, r.ps2, r.ps3, r.ps4 = ps1, ps2, ps3, ps4
	r.dirty = true
}

// History returns the reader's history feature.
func (r *Reader) History() *History { return r.history }

// Completion returns the reader's completion feature.
func (r *Reader) Completion() *Completion { return r.completion }

// Console returns the console the reader edits on.
func (r *Reader) Console() Console { return r.console }

// Text returns the current buffer contents.
func (r *Reader) Text() string { return string(r.buffer) }

// Pos returns the cursor position as a rune offset into the buffer.
func (r *Reader) Pos() int { return r.pos }

// SetBuffer replaces the buffer contents and moves the cursor to the end.
func (r *Reader) SetBuffer(text string) {
	r.buffer = []rune(text)
	r.pos = len(r.buffer)
	r.dirty = true
}

// Insert inserts text at the cursor.
func (r *Reader) Insert(text string) {
	ins := []rune(text)
	r.buffer = append(r.buffer[:r.pos], append(append([]rune(nil), ins...), r.buffer[r.pos:]...)...)
	r.pos += len(ins)
	r.dirty = true
}

// Delete removes buffer[from:to], adjusting the cursor, and returns the
// removed text.
func (r *Reader) Delete(from, to int) string {
	from = min(max(from, 0), len(r.buffer))
	to = min(max(to, from), len(r.buffer))
	if from == to {
		return ""
	}
	removed := string(r.buffer[from:to])
	r.buffer = append(r.buffer[:from], r.buffer[to:]...)
	switch {
	case r.pos >= to:
		r.pos -= to - from
	case r.pos > from:
		r.pos = from
	}
	r.dirty = true
	return removed
}

// SetPos moves the cursor.
func (r *Reader) SetPos(pos int) {
	r.pos = min(max(pos, 0), len(r.buffer))
}

// Error reports a non-fatal user error: beep and a transient message that
// the next keystroke clears.
func (r *Reader) Error(msg string) {
	r.console.Beep()
	r.msg = msg
	r.dirty = true
}

// Arg returns the pending numeric argument, or def if none is pending.
func (r *Reader) Arg(def int) int {
	if !r.argIsSet {
		return def
	}
	return r.arg
}

// LastCommand returns the name of the previously dispatched command.
func (r *Reader) LastCommand() string { return r.lastCommand }

// Finish marks the current input as complete; ReadLine returns after the
// current command.
func (r *Reader) Finish() { r.finished = true }

// syntax classifies ch using the default table plus any configured WORD
// extras.
func (r *Reader) syntax(ch rune) SyntaxClass {
	switch {
	case ch == ' ' || ch == '\t':
		return SyntaxWhitespace
	case isWordRune(ch) || r.wordExtras[ch]:
		return SyntaxWord
	default:
		return SyntaxSymbol
	}
}

func isWordRune(ch rune) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' ||
		ch >= '0' && ch <= '9' || ch > 127 && runewidth.RuneWidth(ch) > 0
}

// bow returns the position of the beginning of the word before p.
func (r *Reader) bow(p int) int {
	for p > 0 && r.syntax(r.buffer[p-1]) != SyntaxWord {
		p--
	}
	for p > 0 && r.syntax(r.buffer[p-1]) == SyntaxWord {
		p--
	}
	return p
}

// eow returns the position of the end of the word after p.
func (r *Reader) eow(p int) int {
	for p < len(r.buffer) && r.syntax(r.buffer[p]) != SyntaxWord {
		p++
	}
	for p < len(r.buffer) && r.syntax(r.buffer[p]) == SyntaxWord {
		p++
	}
	return p
}

// bol returns the position of the beginning of the buffer line containing p.
func (r *Reader) bol(p int) int {
	for p > 0 && r.buffer[p-1] != '\n' {
		p--
	}
	return p
}

// eol returns the position of the end of the buffer line containing p.
func (r *Reader) eol(p int) int {
	for p < len(r.buffer) && r.buffer[p] != '\n' {
		p++
	}
	return p
}

// PushInputTrans activates a translator until PopInputTrans.
func (r *Reader) PushInputTrans(t *KeymapTranslator) {
	r.translators = append(r.translators, t)
}

// PopInputTrans deactivates the most recently pushed translator.
func (r *Reader) PopInputTrans() {
	if len(r.translators) > 1 {
		r.translators = r.translators[:len(r.translators)-1]
	}
}

func (r *Reader) translator() *KeymapTranslator {
	return r.translators[len(r.translators)-1]
}

// ReadLine reads one input from the console. It returns ErrInterrupted if
// the input was interrupted and io.EOF on end-of-input; the terminal is
// restored on every exit path.
func (r *Reader) ReadLine() (string, error) {
	if err := r.prepare(); err != nil {
		return "", err
	}
	defer r.restore()

	r.refresh()
	for !r.finished {
		if err := r.handle1(true); err != nil {
			return "", err
		}
	}
	return r.Text(), nil
}

func (r *Reader) prepare() error {
	if err := r.console.Prepare(); err != nil {
		return err
	}
	r.buffer = r.buffer[:0]
	r.pos = 0
	r.dirty = true
	r.finished = false
	r.arg, r.argIsSet = 0, false
	r.lastCommand = ""
	r.msg = ""
	r.killRing.reset()
	r.translators = r.translators[:1]

	for _, f := range r.features {
		if err := f.Prepare(r); err != nil {
			_ = r.console.Restore()
			return err
		}
	}
	if r.startupHook != nil {
		r.startupHook()
	}
	return nil
}

func (r *Reader) restore() {
	_ = r.console.Restore()
}

// handle1 pulls one translated command and dispatches it. With block=false
// it returns without dispatching when no complete event is available; hosts
// pumping the reader from an event loop use that mode.
func (r *Reader) handle1(block bool) error {
	for {
		t := r.translator()
		if cmd, ev := t.Get(); ev != nil {
			if err := r.doCmd(cmd, *ev); err != nil {
				return err
			}
			r.refresh()
			return nil
		}

		if t.Ambiguous() {
			ready, err := r.console.Wait(keySeqTimeout)
			if err != nil {
				return err
			}
			if !ready {
				t.Commit()
				continue
			}
		}

		event, err := r.console.GetEvent(block)
		if err != nil {
			return err
		}
		if event == nil {
			return nil
		}
		switch event.Kind {
		case "key":
			r.translator().Push(*event)
		case "resize", "repaint", "scroll":
			r.dirty = true
			r.refresh()
			return nil
		}
	}
}

// doCmd looks up and runs one command, maintaining the numeric argument,
// the transient message, and the last-command record.
func (r *Reader) doCmd(name string, e Event) error {
	if r.msg != "" {
		r.msg = ""
		r.dirty = true
	}

	cmd, ok := r.commands[name]
	if !ok {
		r.Error("command `" + name + "' not known")
		return nil
	}

	err := cmd.Run(r, e)

	if !cmd.KeepArg {
		r.arg, r.argIsSet = 0, false
		r.lastCommand = strings.ReplaceAll(name, "_", "-")
	}
	r.killRing.afterCommand(r.lastCommand)

	for _, f := range r.features {
		if ac, ok := f.(afterCommander); ok {
			ac.AfterCommand(r, name, e)
		}
	}
	r.afterCommand()

	if r.finished {
		r.refresh()
		r.console.Finish()
		for _, f := range r.features {
			f.Finish(r)
		}
	}
	return err
}

// afterCommand enforces single-line input when multi-line mode is off:
// history navigation can load multi-line entries, which are truncated at the
// first newline.
func (r *Reader) afterCommand() {
	if r.moreLines != nil {
		return
	}
	for i, ch := range r.buffer {
		if ch == '\n' {
			r.buffer = r.buffer[:i]
			if r.pos > len(r.buffer) {
				r.pos = len(r.buffer)
			}
			r.dirty = true
			break
		}
	}
}

// refresh recomputes the virtual screen and hands it to the console. A
// clean reader only re-places the cursor.
func (r *Reader) refresh() {
	screen, cx, cy := r.calcScreen()
	if r.dirty {
		r.console.Refresh(screen, cx, cy)
		r.dirty = false
	} else {
		r.console.MoveCursor(cx, cy)
	}
}

// getPrompt returns the prompt for a logical line, letting features (the
// isearch prompt) override the default ps1/ps2 pair.
func (r *Reader) getPrompt(lineno int, cursorOnLine bool) string {
	for _, f := range r.features {
		if p, ok := f.(prompter); ok {
			if prompt, ok := p.Prompt(r, lineno, cursorOnLine); ok {
				return prompt
			}
		}
	}
	if lineno == 0 {
		return r.ps1
	}
	return r.ps2
}

// processPrompt strips the zero-width markers from a prompt and computes its
// visible width. Text between \x01 and \x02 contributes no width.
func processPrompt(prompt string) (string, int) {
	var out strings.Builder
	width := 0
	invisible := false
	for _, ch := range prompt {
		switch ch {
		case '\x01':
			invisible = true
		case '\x02':
			invisible = false
		default:
			out.WriteRune(ch)
			if !invisible {
				width += runewidth.RuneWidth(ch)
			}
		}
	}
	return out.String(), width
}

// dispStr expands a buffer line for display: control characters render in
// caret notation. It returns the per-source-rune display strings and widths.
func dispStr(line []rune) (reps []string, widths []int) {
	reps = make([]string, len(line))
	widths = make([]int, len(line))
	for i, ch := range line {
		switch {
		case ch == '\x7f':
			reps[i], widths[i] = "^?", 2
		case ch < 32:
			reps[i], widths[i] = "^"+string(rune(ch+0x40)), 2
		default:
			reps[i], widths[i] = string(ch), runewidth.RuneWidth(ch)
		}
	}
	return reps, widths
}

// calcScreen computes the virtual screen for the current buffer, prompts,
// message, and feature extras, along with the cursor's screen coordinates.
// Logical lines wrap at width-1 with a backslash marker in the last column.
func (r *Reader) calcScreen() (screen []string, cx, cy int) {
	lines := strings.Split(string(r.buffer), "\n")
	w := r.console.Width() - 1
	if w < 1 {
		w = 1
	}

	p := r.pos
	for ln, line := range lines {
		runes := []rune(line)
		ll := len(runes)
		cursorOnLine := p >= 0 && p <= ll

		prompt := r.getPrompt(ln, cursorOnLine)
		// Prompts may span lines; all but the last land on rows of their
		// own.
		for strings.Contains(prompt, "\n") {
			pre, rest, _ := strings.Cut(prompt, "\n")
			screen = append(screen, pre)
			prompt = rest
		}
		prompt, lp := processPrompt(prompt)

		reps, widths := dispStr(runes)

		i := 0
		first := true
		for {
			avail := w
			pre := ""
			prelen := 0
			if first {
				avail = max(w-lp, 1)
				pre = prompt
				prelen = lp
			}

			start := i
			col := 0
			for i < len(reps) && col+widths[i] < avail {
				col += widths[i]
				i++
			}
			if i == start && i < len(reps) {
				// Never stall on a character wider than the row.
				i++
			}
			last := i >= len(reps)

			row := pre + strings.Join(reps[start:i], "")
			if !last {
				row += "\\"
			}

			if cursorOnLine && (p < i || (last && p <= i)) && p >= start {
				cx = prelen
				for j := start; j < p; j++ {
					cx += widths[j]
				}
				cy = len(screen)
				cursorOnLine = false
			}

			screen = append(screen, row)
			if last {
				break
			}
			first = false
		}

		p -= ll + 1
	}

	if r.msg != "" {
		screen = append(screen, strings.Split(r.msg, "\n")...)
	}
	for _, f := range r.features {
		if se, ok := f.(screenExtra); ok {
			screen = append(screen, se.ExtraLines(r)...)
		}
	}
	return screen, cx, cy
}
