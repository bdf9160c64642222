package pyrepl

import (
	"sort"
	"strings"
)

// Completer produces completion candidates for the word text[wordStart:pos].
type Completer func(text []rune, wordStart, pos int) []string

const defaultCompleterDelims = " \t\n`~!@#$%^&*()-=+[{]}\\|;:'\",<>/?"

const menuMaxRows = 4

// Completion adds word completion to a Reader: stem extraction against a
// configurable delimiter set, common-prefix extension, and a transient
// candidate menu below the edit area.
type Completion struct {
	completer    Completer
	delims       map[rune]bool
	sortInColumn bool

	menu        []string
	menuVisible bool
	pageStart   int
}

func newCompletion() *Completion {
	c := &Completion{sortInColumn: true}
	c.SetDelims(defaultCompleterDelims)
	return c
}

func (c *Completion) Bindings() []Binding {
	return []Binding{{`\t`, "complete"}}
}

func (c *Completion) Commands() map[string]Command {
	return map[string]Command{
		"complete": {Run: c.cmdComplete},
	}
}

func (c *Completion) Prepare(r *Reader) error {
	c.menu = nil
	c.menuVisible = false
	c.pageStart = 0
	return nil
}

func (c *Completion) Finish(r *Reader) {}

// AfterCommand dismisses the menu on any key other than another complete.
func (c *Completion) AfterCommand(r *Reader, cmd string, e Event) {
	if c.menuVisible && cmd != "complete" {
		c.menuVisible = false
		r.dirty = true
	}
}

// ExtraLines contributes the menu rows to the virtual screen.
func (c *Completion) ExtraLines(r *Reader) []string {
	if !c.menuVisible {
		return nil
	}
	return c.menu
}

// SetCompleter installs the candidate source.
func (c *Completion) SetCompleter(fn Completer) { c.completer = fn }

// GetCompleter returns the installed candidate source.
func (c *Completion) GetCompleter() Completer { return c.completer }

// SetDelims configures the characters that end a completion stem.
func (c *Completion) SetDelims(delims string) {
	c.delims = make(map[rune]bool, len(delims))
	for _, ch := range delims {
		c.delims[ch] = true
	}
}

// Delims returns the delimiter set, sorted.
func (c *Completion) Delims() string {
	chars := make([]rune, 0, len(c.delims))
	for ch := range c.delims {
		chars = append(chars, ch)
	}
	sort.Slice(chars, func(i, j int) bool { return chars[i] < chars[j] })
	return string(chars)
}

// StemBounds returns the extent of the completion stem ending at the cursor.
func (c *Completion) StemBounds(r *Reader) (start, end int) {
	start = r.pos
	for start > 0 && !c.delims[r.buffer[start-1]] {
		start--
	}
	return start, r.pos
}

func (c *Completion) cmdComplete(r *Reader, e Event) error {
	if c.completer == nil {
		r.console.Beep()
		return nil
	}
	start, end := c.StemBounds(r)
	stem := string(r.buffer[start:end])

	candidates := c.completer(r.buffer, start, end)
	candidates = append([]string(nil), candidates...)
	sort.Strings(candidates)

	switch len(candidates) {
	case 0:
		r.console.Beep()
		return nil
	case 1:
		r.Insert(candidates[0][len(stem):])
		if r.pos == len(r.buffer) || r.buffer[r.pos] != ' ' {
			r.Insert(" ")
		}
		return nil
	}

	prefix := commonPrefix(candidates)
	if len(prefix) > len(stem) {
		r.Insert(prefix[len(stem):])
		return nil
	}

	// No progress: show the menu, or page it if it is already up.
	if c.menuVisible && r.LastCommand() == "complete" {
		c.pageStart = c.pageEnd(r, candidates)
		if c.pageStart >= len(candidates) {
			c.pageStart = 0
		}
	} else {
		c.pageStart = 0
	}
	c.menu = buildMenu(r.console.Width(), candidates, c.pageStart, c.sortInColumn)
	c.menuVisible = true
	r.dirty = true
	return nil
}

func (c *Completion) pageEnd(r *Reader, items []string) int {
	shown := menuCapacity(r.console.Width(), items)
	return c.pageStart + shown
}

func commonPrefix(items []string) string {
	prefix := items[0]
	for _, item := range items[1:] {
		for !strings.HasPrefix(item, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}

func menuItemWidth(items []string) int {
	w := 0
	for _, item := range items {
		w = max(w, len([]rune(item)))
	}
	return w + 2
}

func menuCapacity(width int, items []string) int {
	cols := max(width/menuItemWidth(items), 1)
	return cols * menuMaxRows
}

// buildMenu lays out one page of candidates, column-major or row-major, in
// columns sized to the widest candidate.
func buildMenu(width int, items []string, start int, sortInColumn bool) []string {
	itemWidth := menuItemWidth(items)
	cols := max(width/itemWidth, 1)

	page := items[min(start, len(items)):]
	if len(page) > cols*menuMaxRows {
		page = page[:cols*menuMaxRows]
	}
	rows := (len(page) + cols - 1) / cols

	lines := make([]string, 0, rows)
	for y := 0; y < rows; y++ {
		var line strings.Builder
		for x := 0; x < cols; x++ {
			var i int
			if sortInColumn {
				i = x*rows + y
			} else {
				i = y*cols + x
			}
			if i >= len(page) {
				continue
			}
			item := page[i]
			line.WriteString(item)
			if pad := itemWidth - len([]rune(item)); pad > 0 && x < cols-1 {
				line.WriteString(strings.Repeat(" ", pad))
			}
		}
		lines = append(lines, strings.TrimRight(line.String(), " "))
	}
	if start+len(page) < len(items) {
		lines = append(lines, "...")
	}
	return lines
}
