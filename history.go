package pyrepl

import (
	"fmt"
	"strings"
)

const (
	isearchNone      = 0
	isearchForwards  = 1
	isearchBackwards = -1
)

var isearchKeymap = []Binding{
	{`\C-r`, "isearch-backwards"},
	{`\C-s`, "isearch-forwards"},
	{`\C-c`, "isearch-cancel"},
	{`\C-g`, "isearch-cancel"},
	{`\<backspace>`, "isearch-backspace"},
}

// History adds history browsing, transient per-session edits, incremental
// search, and yank-arg to a Reader.
//
// Index historyi ranges over [0, len(entries)], where len(entries) is the
// "new entry" slot holding the live buffer. Edits made while visiting older
// entries are kept in transient storage and written back only when an input
// is accepted.
type History struct {
	entries   []string
	historyi  int
	transient map[int]string

	nextHistory    int
	hasNextHistory bool

	isearchDir           int
	isearchTerm          string
	isearchStartI        int
	isearchStartPos      int
	isearchTrans         *KeymapTranslator

	yankArgI      int
	yankArgYanked string
}

func newHistory() *History {
	h := &History{transient: make(map[int]string)}
	trans, err := NewKeymapTranslator(isearchKeymap, "isearch-end", "isearch-add-character")
	if err != nil {
		panic(err)
	}
	h.isearchTrans = trans
	return h
}

func (h *History) Bindings() []Binding {
	return []Binding{
		{`\C-n`, "next-history"},
		{`\C-p`, "previous-history"},
		{`\C-o`, "operate-and-get-next"},
		{`\C-r`, "reverse-history-isearch"},
		{`\C-s`, "forward-history-isearch"},
		{`\M-r`, "restore-history"},
		{`\M-.`, "yank-arg"},
		{`\<page down>`, "last-history"},
		{`\<page up>`, "first-history"},
	}
}

func (h *History) Commands() map[string]Command {
	return map[string]Command{
		"next-history":            {Run: h.cmdNextHistory},
		"previous-history":        {Run: h.cmdPreviousHistory},
		"first-history":           {Run: h.cmdFirstHistory},
		"last-history":            {Run: h.cmdLastHistory},
		"restore-history":         {Run: h.cmdRestoreHistory},
		"operate-and-get-next":    {Run: h.cmdOperateAndGetNext},
		"yank-arg":                {Run: h.cmdYankArg},
		"reverse-history-isearch": {Run: h.cmdReverseIsearch},
		"forward-history-isearch": {Run: h.cmdForwardIsearch},
		"isearch-add-character":   {Run: h.cmdIsearchAddCharacter},
		"isearch-backspace":       {Run: h.cmdIsearchBackspace},
		"isearch-forwards":        {Run: h.cmdIsearchForwards},
		"isearch-backwards":       {Run: h.cmdIsearchBackwards},
		"isearch-cancel":          {Run: h.cmdIsearchCancel},
		"isearch-end":             {Run: h.cmdIsearchEnd},
	}
}

// Prepare clears the transient edits and positions the reader: at the entry
// requested by a previous operate-and-get-next if still in range, else at
// the new-entry slot.
func (h *History) Prepare(r *Reader) error {
	h.transient = make(map[int]string)
	h.isearchDir = isearchNone
	h.isearchTerm = ""
	h.yankArgI = 0
	h.yankArgYanked = ""

	if h.hasNextHistory && h.nextHistory < len(h.entries) {
		h.historyi = h.nextHistory
		r.SetBuffer(h.entries[h.nextHistory])
		h.transient[len(h.entries)] = ""
	} else {
		h.historyi = len(h.entries)
	}
	h.hasNextHistory = false
	return nil
}

// Finish writes surviving transient edits back into their entries and
// appends the accepted input, if non-empty, to history.
func (h *History) Finish(r *Reader) {
	ret := r.Text()
	for i, t := range h.transient {
		if i < len(h.entries) && i != h.historyi {
			h.entries[i] = t
		}
	}
	if ret != "" {
		h.entries = append(h.entries, ret)
	}
}

// Prompt renders the isearch prompt while a search is active.
func (h *History) Prompt(r *Reader, lineno int, cursorOnLine bool) (string, bool) {
	if h.isearchDir == isearchNone {
		return "", false
	}
	if cursorOnLine {
		d := "r"
		if h.isearchDir == isearchForwards {
			d = "f"
		}
		return fmt.Sprintf("(%s-search `%s') ", d, h.isearchTerm), true
	}
	if lineno == 0 {
		return r.ps3, true
	}
	return r.ps4, true
}

// Len returns the number of committed history entries.
func (h *History) Len() int { return len(h.entries) }

// Item returns entry i.
func (h *History) Item(i int) string { return h.entries[i] }

// Append adds an entry to history.
func (h *History) Append(s string) { h.entries = append(h.entries, s) }

// Clear removes all entries.
func (h *History) Clear() { h.entries = nil }

// Remove deletes entry i.
func (h *History) Remove(i int) {
	h.entries = append(h.entries[:i], h.entries[i+1:]...)
}

// Replace overwrites entry i.
func (h *History) Replace(i int, s string) { h.entries[i] = s }

// Trimmed returns the most recent maxLength entries, or all of them if
// maxLength is negative.
func (h *History) Trimmed(maxLength int) []string {
	cut := 0
	if maxLength >= 0 {
		cut = max(len(h.entries)-maxLength, 0)
	}
	return append([]string(nil), h.entries[cut:]...)
}

// selectItem snapshots the buffer into transient storage and loads entry i:
// its transient edit if one exists, else the committed text, else the empty
// new-entry slot.
func (h *History) selectItem(r *Reader, i int) {
	h.transient[h.historyi] = r.Text()
	text, ok := h.transient[i]
	if !ok {
		if i < len(h.entries) {
			text = h.entries[i]
		} else {
			text = ""
		}
	}
	h.historyi = i
	r.SetBuffer(text)
}

// getItem returns entry i as the reader sees it: the live buffer for the
// new-entry slot, a transient edit if one exists, else the committed text.
func (h *History) getItem(r *Reader, i int) string {
	if i == len(h.entries) {
		return r.Text()
	}
	if t, ok := h.transient[i]; ok {
		return t
	}
	return h.entries[i]
}

func (h *History) cmdNextHistory(r *Reader, e Event) error {
	if h.historyi == len(h.entries) {
		r.Error("end of history list")
		return nil
	}
	h.selectItem(r, h.historyi+1)
	return nil
}

func (h *History) cmdPreviousHistory(r *Reader, e Event) error {
	if h.historyi == 0 {
		r.Error("start of history list")
		return nil
	}
	h.selectItem(r, h.historyi-1)
	return nil
}

func (h *History) cmdFirstHistory(r *Reader, e Event) error {
	h.selectItem(r, 0)
	return nil
}

func (h *History) cmdLastHistory(r *Reader, e Event) error {
	h.selectItem(r, len(h.entries))
	return nil
}

// cmdRestoreHistory discards the transient edit of the current entry,
// reloading the committed text.
func (h *History) cmdRestoreHistory(r *Reader, e Event) error {
	if h.historyi != len(h.entries) && r.Text() != h.entries[h.historyi] {
		r.SetBuffer(h.entries[h.historyi])
	}
	return nil
}

func (h *History) cmdOperateAndGetNext(r *Reader, e Event) error {
	h.nextHistory = h.historyi + 1
	h.hasNextHistory = true
	r.Finish()
	return nil
}

// cmdYankArg inserts a whitespace-split word from a prior history entry at
// the cursor. Repeated invocations walk further back, replacing the
// previously yanked word. The numeric argument picks the word; the default
// -1 is the last word.
func (h *History) cmdYankArg(r *Reader, e Event) error {
	if r.LastCommand() == "yank-arg" {
		h.yankArgI++
	} else {
		h.yankArgI = 0
	}
	i := h.historyi - h.yankArgI - 1
	if i < 0 {
		r.Error("beginning of history list")
		return nil
	}
	a := r.Arg(-1)
	words := strings.Fields(h.getItem(r, i))
	if a < -len(words) || a >= len(words) {
		r.Error("no such arg")
		return nil
	}
	idx := a
	if idx < 0 {
		idx += len(words)
	}
	w := words[idx]

	o := 0
	if h.yankArgI > 0 {
		o = len([]rune(h.yankArgYanked))
	}
	r.Delete(r.pos-o, r.pos)
	r.Insert(w)
	h.yankArgYanked = w
	return nil
}

func (h *History) startIsearch(r *Reader, dir int) {
	h.isearchDir = dir
	h.isearchTerm = ""
	h.isearchStartI = h.historyi
	h.isearchStartPos = r.pos
	r.dirty = true
	r.PushInputTrans(h.isearchTrans)
}

func (h *History) cmdReverseIsearch(r *Reader, e Event) error {
	h.startIsearch(r, isearchBackwards)
	return nil
}

func (h *History) cmdForwardIsearch(r *Reader, e Event) error {
	h.startIsearch(r, isearchForwards)
	return nil
}

func (h *History) cmdIsearchAddCharacter(r *Reader, e Event) error {
	ch := lastRune(e.Data)
	if ch < 32 || ch == 0x7f {
		// Control keys end the search and are reinterpreted outside it.
		return h.cmdIsearchEnd(r, e)
	}
	h.isearchTerm += string(ch)
	r.dirty = true
	p := r.pos + len([]rune(h.isearchTerm)) - 1
	if p >= len(r.buffer) || r.buffer[p] != ch {
		h.isearchNext(r)
	}
	return nil
}

func (h *History) cmdIsearchBackspace(r *Reader, e Event) error {
	term := []rune(h.isearchTerm)
	if len(term) == 0 {
		r.Error("nothing to rubout")
		return nil
	}
	h.isearchTerm = string(term[:len(term)-1])
	r.dirty = true
	return nil
}

func (h *History) cmdIsearchForwards(r *Reader, e Event) error {
	h.isearchDir = isearchForwards
	h.isearchNext(r)
	return nil
}

func (h *History) cmdIsearchBackwards(r *Reader, e Event) error {
	h.isearchDir = isearchBackwards
	h.isearchNext(r)
	return nil
}

// cmdIsearchCancel restores the history index and cursor captured when the
// search started.
func (h *History) cmdIsearchCancel(r *Reader, e Event) error {
	h.isearchDir = isearchNone
	r.PopInputTrans()
	h.selectItem(r, h.isearchStartI)
	r.SetPos(h.isearchStartPos)
	r.dirty = true
	return nil
}

// cmdIsearchEnd accepts the current match and hands the terminating key back
// to the outer keymap.
func (h *History) cmdIsearchEnd(r *Reader, e Event) error {
	h.isearchDir = isearchNone
	_ = r.console.ForgetInput()
	r.PopInputTrans()
	r.dirty = true
	r.translator().Push(e)
	return nil
}

// isearchNext advances the search: within the current item first, then entry
// by entry toward the history edge. At the edge with no match it reports
// "not found" without moving.
func (h *History) isearchNext(r *Reader) {
	term := []rune(h.isearchTerm)
	p := r.pos
	i := h.historyi
	s := []rune(r.Text())
	forwards := h.isearchDir == isearchForwards
	for {
		if forwards {
			p = runeIndexFrom(s, term, p+1)
		} else {
			p = runeLastIndexBefore(s, term, p+len(term)-1)
		}
		if p != -1 {
			h.selectItem(r, i)
			r.SetPos(p)
			return
		}
		if (forwards && i >= len(h.entries)-1) || (!forwards && i == 0) {
			r.Error("not found")
			return
		}
		if forwards {
			i++
			s = []rune(h.getItem(r, i))
			p = -1
		} else {
			i--
			s = []rune(h.getItem(r, i))
			p = len(s)
		}
	}
}

// runeIndexFrom returns the first index >= from where term occurs in s, or
// -1.
func runeIndexFrom(s, term []rune, from int) int {
	if from < 0 {
		from = 0
	}
	for i := from; i+len(term) <= len(s); i++ {
		if string(s[i:i+len(term)]) == string(term) {
			return i
		}
	}
	return -1
}

// runeLastIndexBefore returns the last index where term occurs entirely
// within s[:end], or -1.
func runeLastIndexBefore(s, term []rune, end int) int {
	end = min(end, len(s))
	for i := end - len(term); i >= 0; i-- {
		if string(s[i:i+len(term)]) == string(term) {
			return i
		}
	}
	return -1
}
