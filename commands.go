package pyrepl

import (
	"io"
	"strings"
	"unicode/utf8"
)

// baseKeymap is the default binding set for the core editing commands.
// Features append their own bindings, and users can rebind at construction.
var baseKeymap = []Binding{
	{`\C-a`, "beginning-of-line"},
	{`\C-b`, "left"},
	{`\C-c`, "interrupt"},
	{`\C-d`, "delete"},
	{`\C-e`, "end-of-line"},
	{`\C-f`, "right"},
	{`\C-h`, "backspace"},
	{`\C-j`, "maybe-accept"},
	{`\C-k`, "kill-line"},
	{`\C-l`, "clear-screen"},
	{`\C-m`, "maybe-accept"},
	{`\C-q`, "quoted-insert"},
	{`\C-t`, "transpose-chars"},
	{`\C-u`, "unix-line-discard"},
	{`\C-v`, "quoted-insert"},
	{`\C-w`, "backward-kill-word"},
	{`\C-x\C-r`, "refresh"},
	{`\C-y`, "yank"},
	{`\M-b`, "backward-word"},
	{`\M-d`, "kill-word"},
	{`\M-f`, "forward-word"},
	{`\M-y`, "yank-pop"},
	{`\M-\C-u`, "universal-argument"},
	{`\M-\n`, "insert-nl"},
	{`\M--`, "digit-arg"},
	{`\M-0`, "digit-arg"},
	{`\M-1`, "digit-arg"},
	{`\M-2`, "digit-arg"},
	{`\M-3`, "digit-arg"},
	{`\M-4`, "digit-arg"},
	{`\M-5`, "digit-arg"},
	{`\M-6`, "digit-arg"},
	{`\M-7`, "digit-arg"},
	{`\M-8`, "digit-arg"},
	{`\M-9`, "digit-arg"},
	{`\M-\<backspace>`, "backward-kill-word"},
	{`\<up>`, "up"},
	{`\<down>`, "down"},
	{`\<left>`, "left"},
	{`\<right>`, "right"},
	{`\<home>`, "beginning-of-line"},
	{`\<end>`, "end-of-line"},
	{`\<backspace>`, "backspace"},
	{`\<delete>`, "delete"},
	{`\<f1>`, "help"},
}

const helpText = `Editing: C-a/C-e line ends, M-b/M-f words, C-k/C-u kill, C-y yank.
History: C-p/C-n browse, C-r/C-s incremental search, M-. yank last arg.
Tab completes. C-c interrupts, C-d on an empty line ends input.`

var baseCommands = map[string]Command{
	"self-insert": {Run: func(r *Reader, e Event) error {
		text := e.Data
		if n := r.Arg(1); n > 1 {
			text = strings.Repeat(text, n)
		}
		r.Insert(text)
		return nil
	}},

	"insert-nl": {Run: func(r *Reader, e Event) error {
		r.Insert(strings.Repeat("\n", r.Arg(1)))
		return nil
	}},

	"quoted-insert": {Run: func(r *Reader, e Event) error {
		raw := e.Raw
		if raw == "" || raw == "\x11" || raw == "\x16" {
			// Invoked from the keyboard: the next event is taken
			// literally.
			ev, err := r.console.GetEvent(true)
			if err != nil {
				return err
			}
			if ev == nil {
				return nil
			}
			raw = ev.Raw
		}
		r.Insert(strings.Repeat(raw, r.Arg(1)))
		return nil
	}},

	"left": {Run: func(r *Reader, e Event) error {
		for i := 0; i < r.Arg(1); i++ {
			if r.pos == 0 {
				r.Error("start of buffer")
				return nil
			}
			r.SetPos(r.pos - 1)
		}
		return nil
	}},

	"right": {Run: func(r *Reader, e Event) error {
		for i := 0; i < r.Arg(1); i++ {
			if r.pos == len(r.buffer) {
				r.Error("end of buffer")
				return nil
			}
			r.SetPos(r.pos + 1)
		}
		return nil
	}},

	"up": {Run: func(r *Reader, e Event) error {
		for i := 0; i < r.Arg(1); i++ {
			bol := r.bol(r.pos)
			if bol == 0 {
				r.Error("start of buffer")
				return nil
			}
			col := r.pos - bol
			prevBol := r.bol(bol - 1)
			r.SetPos(min(prevBol+col, bol-1))
		}
		return nil
	}},

	"down": {Run: func(r *Reader, e Event) error {
		for i := 0; i < r.Arg(1); i++ {
			eol := r.eol(r.pos)
			if eol == len(r.buffer) {
				r.Error("end of buffer")
				return nil
			}
			col := r.pos - r.bol(r.pos)
			nextEol := r.eol(eol + 1)
			r.SetPos(min(eol+1+col, nextEol))
		}
		return nil
	}},

	"backward-word": {Run: func(r *Reader, e Event) error {
		for i := 0; i < r.Arg(1); i++ {
			r.SetPos(r.bow(r.pos))
		}
		return nil
	}},

	"forward-word": {Run: func(r *Reader, e Event) error {
		for i := 0; i < r.Arg(1); i++ {
			r.SetPos(r.eow(r.pos))
		}
		return nil
	}},

	"beginning-of-line": {Run: func(r *Reader, e Event) error {
		r.SetPos(r.bol(r.pos))
		return nil
	}},

	"end-of-line": {Run: func(r *Reader, e Event) error {
		r.SetPos(r.eol(r.pos))
		return nil
	}},

	"backspace": {Run: func(r *Reader, e Event) error {
		for i := 0; i < r.Arg(1); i++ {
			if r.pos == 0 {
				r.Error("can't backspace at start")
				return nil
			}
			r.Delete(r.pos-1, r.pos)
		}
		return nil
	}},

	"delete": {Run: func(r *Reader, e Event) error {
		if len(r.buffer) == 0 && r.pos == 0 && !r.argIsSet &&
			(e.Data == "\x04" || e.Data == "") {
			// C-d on an empty buffer ends the input.
			return io.EOF
		}
		for i := 0; i < r.Arg(1); i++ {
			if r.pos == len(r.buffer) {
				r.Error("end of buffer")
				return nil
			}
			r.Delete(r.pos, r.pos+1)
		}
		return nil
	}},

	"kill-word": {Run: func(r *Reader, e Event) error {
		end := r.pos
		for i := 0; i < r.Arg(1); i++ {
			end = r.eowFrom(end)
		}
		if killed := r.Delete(r.pos, end); killed != "" {
			r.killRing.append(killed)
		}
		return nil
	}},

	"backward-kill-word": {Run: func(r *Reader, e Event) error {
		start := r.pos
		for i := 0; i < r.Arg(1); i++ {
			start = r.bowFrom(start)
		}
		if killed := r.Delete(start, r.pos); killed != "" {
			r.killRing.prepend(killed)
		}
		return nil
	}},

	"kill-line": {Run: func(r *Reader, e Event) error {
		eol := r.eol(r.pos)
		if eol == r.pos && eol < len(r.buffer) {
			// At end of line the newline itself is killed.
			eol++
		}
		if killed := r.Delete(r.pos, eol); killed != "" {
			r.killRing.append(killed)
		}
		return nil
	}},

	"unix-line-discard": {Run: func(r *Reader, e Event) error {
		if killed := r.Delete(r.bol(r.pos), r.pos); killed != "" {
			r.killRing.prepend(killed)
		}
		return nil
	}},

	"yank": {Run: func(r *Reader, e Event) error {
		text := r.killRing.yank()
		if text == "" {
			r.Error("nothing to yank")
			return nil
		}
		r.Insert(text)
		return nil
	}},

	"yank-pop": {Run: func(r *Reader, e Event) error {
		if !r.killRing.yanking {
			r.Error("previous command was not a yank")
			return nil
		}
		yanked := r.killRing.yank()
		r.Delete(r.pos-utf8.RuneCountInString(yanked), r.pos)
		r.killRing.rotate()
		r.Insert(r.killRing.yank())
		return nil
	}},

	"transpose-chars": {Run: func(r *Reader, e Event) error {
		if r.pos == 0 {
			r.Error("can't transpose at start of buffer")
			return nil
		}
		p := r.pos
		if p == len(r.buffer) || r.buffer[p] == '\n' {
			p--
		}
		if p == 0 {
			r.Error("can't transpose at start of buffer")
			return nil
		}
		r.buffer[p-1], r.buffer[p] = r.buffer[p], r.buffer[p-1]
		r.SetPos(p + 1)
		r.dirty = true
		return nil
	}},

	"digit-arg": {KeepArg: true, Run: func(r *Reader, e Event) error {
		c := lastRune(e.Data)
		if c == '-' {
			if r.argIsSet {
				r.arg = -r.arg
			} else {
				r.arg, r.argIsSet = -1, true
			}
			return nil
		}
		d := int(c - '0')
		if !r.argIsSet {
			r.arg, r.argIsSet = d, true
		} else if r.arg < 0 {
			r.arg = 10*r.arg - d
		} else {
			r.arg = 10*r.arg + d
		}
		return nil
	}},

	"universal-argument": {KeepArg: true, Run: func(r *Reader, e Event) error {
		if !r.argIsSet {
			r.arg, r.argIsSet = 4, true
		} else {
			r.arg *= 4
		}
		return nil
	}},

	"accept": {Run: func(r *Reader, e Event) error {
		r.Finish()
		return nil
	}},

	"maybe-accept": {Run: func(r *Reader, e Event) error {
		// Finish only when the cursor is on the final line and the
		// multi-line hook (if any) agrees the input is complete; otherwise
		// insert a newline.
		if strings.ContainsRune(string(r.buffer[r.pos:]), '\n') ||
			(r.moreLines != nil && r.moreLines(r.Text())) {
			r.Insert("\n")
			return nil
		}
		r.Finish()
		return nil
	}},

	"interrupt": {Run: func(r *Reader, e Event) error {
		return ErrInterrupted
	}},

	"clear-screen": {Run: func(r *Reader, e Event) error {
		r.console.Clear()
		r.dirty = true
		return nil
	}},

	"refresh": {Run: func(r *Reader, e Event) error {
		r.dirty = true
		return nil
	}},

	"help": {Run: func(r *Reader, e Event) error {
		r.msg = helpText
		r.dirty = true
		return nil
	}},

	"invalid-key": {Run: func(r *Reader, e Event) error {
		r.Error("`" + keyRepr(e.Data) + "' not bound")
		return nil
	}},

	"invalid-command": {Run: func(r *Reader, e Event) error {
		r.Error("command `" + e.Data + "' not known")
		return nil
	}},
}

// eowFrom and bowFrom mirror eow/bow from an arbitrary position.
func (r *Reader) eowFrom(p int) int { return r.eow(min(p, len(r.buffer))) }
func (r *Reader) bowFrom(p int) int { return r.bow(min(p, len(r.buffer))) }

func lastRune(s string) rune {
	ch, _ := utf8.DecodeLastRuneInString(s)
	return ch
}

// keyRepr renders a key sequence readably for error messages.
func keyRepr(data string) string {
	var buf strings.Builder
	for _, ch := range data {
		switch {
		case ch == 0x1b:
			buf.WriteString(`\e`)
		case ch == 0x7f:
			buf.WriteString("^?")
		case ch < 32:
			buf.WriteByte('^')
			buf.WriteRune(ch + 0x40)
		default:
			buf.WriteRune(ch)
		}
	}
	return buf.String()
}
