package pyrepl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
)

// Readline is a readline-compatible façade over a Reader, for embedders that
// expect the classic flat surface: history manipulation, completer
// configuration, history files, and the multi-line input extension.
//
// The underlying console and reader are created lazily on first use, so
// constructing a Readline on a non-terminal is harmless: Input degrades to a
// plain buffered read.
type Readline struct {
	in, out *os.File

	console *UnixConsole
	reader  *Reader

	savedHistoryLength int
	startupHook        func()
}

// NewReadline creates a façade reading from in and writing to out; nil
// selects stdin/stdout.
func NewReadline(in, out *os.File) *Readline {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &Readline{in: in, out: out, savedHistoryLength: -1}
}

// NewReadlineFromReader wraps an existing Reader, for embedders that build
// their own console.
func NewReadlineFromReader(r *Reader) *Readline {
	w := &Readline{
		in:                 os.Stdin,
		out:                os.Stdout,
		reader:             r,
		savedHistoryLength: -1,
	}
	r.startupHook = func() {
		if w.startupHook != nil {
			w.startupHook()
		}
	}
	return w
}

func (w *Readline) getReader() (*Reader, error) {
	if w.reader != nil {
		return w.reader, nil
	}
	if !isatty.IsTerminal(w.in.Fd()) || !isatty.IsTerminal(w.out.Fd()) {
		return nil, fmt.Errorf("%w: not a terminal", ErrInvalidTerminal)
	}
	console, err := NewUnixConsole(WithFDs(int(w.in.Fd()), int(w.out.Fd())))
	if err != nil {
		return nil, err
	}
	reader, err := NewReader(console)
	if err != nil {
		return nil, err
	}
	reader.startupHook = func() {
		if w.startupHook != nil {
			w.startupHook()
		}
	}
	w.console = console
	w.reader = reader
	return reader, nil
}

// Input reads one line with the given prompt. On a non-terminal it falls
// back to a plain buffered read.
func (w *Readline) Input(prompt string) (string, error) {
	reader, err := w.getReader()
	if err != nil {
		fmt.Fprint(w.out, prompt)
		line, rerr := bufio.NewReader(w.in).ReadString('\n')
		if rerr != nil && line == "" {
			return "", rerr
		}
		return strings.TrimRight(line, "\n"), nil
	}
	reader.SetPrompts(prompt, prompt, prompt, prompt)
	reader.moreLines = nil
	return reader.ReadLine()
}

// MultilineInput reads an input on possibly multiple lines: enter inserts a
// newline as long as moreLines(text) is true, and finishes the input
// otherwise. ps1 prompts the first line, ps2 the continuations.
func (w *Readline) MultilineInput(moreLines func(string) bool, ps1, ps2 string) (string, error) {
	reader, err := w.getReader()
	if err != nil {
		return "", err
	}
	saved := reader.moreLines
	savedPs := [4]string{reader.ps1, reader.ps2, reader.ps3, reader.ps4}
	defer func() {
		reader.moreLines = saved
		reader.SetPrompts(savedPs[0], savedPs[1], savedPs[2], savedPs[3])
	}()
	reader.moreLines = moreLines
	reader.SetPrompts(ps1, ps2, ps2, ps2)
	return reader.ReadLine()
}

// ParseAndBind is a no-op: GNU-readline init strings are not supported.
func (w *Readline) ParseAndBind(string) {}

// SetCompleter installs the completion candidate source.
func (w *Readline) SetCompleter(fn Completer) {
	if r, err := w.getReader(); err == nil {
		r.Completion().SetCompleter(fn)
	}
}

// GetCompleter returns the installed candidate source.
func (w *Readline) GetCompleter() Completer {
	if r, err := w.getReader(); err == nil {
		return r.Completion().GetCompleter()
	}
	return nil
}

// SetCompleterDelims configures the stem delimiter characters.
func (w *Readline) SetCompleterDelims(delims string) {
	if r, err := w.getReader(); err == nil {
		r.Completion().SetDelims(delims)
	}
}

// GetCompleterDelims returns the stem delimiter characters, sorted.
func (w *Readline) GetCompleterDelims() string {
	if r, err := w.getReader(); err == nil {
		return r.Completion().Delims()
	}
	return ""
}

// GetHistoryLength returns the configured history file length limit.
func (w *Readline) GetHistoryLength() int { return w.savedHistoryLength }

// SetHistoryLength limits how many entries WriteHistoryFile keeps; negative
// means unlimited.
func (w *Readline) SetHistoryLength(length int) { w.savedHistoryLength = length }

// GetCurrentHistoryLength returns the number of history entries.
func (w *Readline) GetCurrentHistoryLength() int {
	if r, err := w.getReader(); err == nil {
		return r.History().Len()
	}
	return 0
}

// GetHistoryItem returns the 1-based history entry, blank if out of range.
func (w *Readline) GetHistoryItem(index int) (string, bool) {
	r, err := w.getReader()
	if err != nil || index < 1 || index > r.History().Len() {
		return "", false
	}
	return r.History().Item(index - 1), true
}

// RemoveHistoryItem deletes the 0-based history entry.
func (w *Readline) RemoveHistoryItem(index int) error {
	r, err := w.getReader()
	if err != nil {
		return err
	}
	if index < 0 || index >= r.History().Len() {
		return fmt.Errorf("no history item at position %d", index)
	}
	r.History().Remove(index)
	return nil
}

// ReplaceHistoryItem overwrites the 0-based history entry.
func (w *Readline) ReplaceHistoryItem(index int, line string) error {
	r, err := w.getReader()
	if err != nil {
		return err
	}
	if index < 0 || index >= r.History().Len() {
		return fmt.Errorf("no history item at position %d", index)
	}
	r.History().Replace(index, histLine(line))
	return nil
}

// AddHistory appends an entry.
func (w *Readline) AddHistory(line string) {
	if r, err := w.getReader(); err == nil {
		r.History().Append(histLine(line))
	}
}

// ClearHistory removes all entries.
func (w *Readline) ClearHistory() {
	if r, err := w.getReader(); err == nil {
		r.History().Clear()
	}
}

// SetStartupHook installs a hook run at the start of every input.
func (w *Readline) SetStartupHook(fn func()) { w.startupHook = fn }

// GetLineBuffer returns the current edit buffer.
func (w *Readline) GetLineBuffer() string {
	if r, err := w.getReader(); err == nil {
		return r.Text()
	}
	return ""
}

// InsertText inserts text at the cursor; useful from a startup hook.
func (w *Readline) InsertText(text string) {
	if r, err := w.getReader(); err == nil {
		r.Insert(text)
	}
}

// GetBegidx returns the start of the completion stem at the cursor.
func (w *Readline) GetBegidx() int {
	if r, err := w.getReader(); err == nil {
		start, _ := r.Completion().StemBounds(r)
		return start
	}
	return 0
}

// GetEndidx returns the end of the completion stem at the cursor.
func (w *Readline) GetEndidx() int {
	if r, err := w.getReader(); err == nil {
		_, end := r.Completion().StemBounds(r)
		return end
	}
	return 0
}

// ReadHistoryFile loads history from a file. Within a single entry,
// continuation lines are stored terminated by \r\n and the final line by
// \n, so multi-line entries survive the round trip and the file remains
// readable by implementations that ignore the \r.
func (w *Readline) ReadHistoryFile(filename string) error {
	r, err := w.getReader()
	if err != nil {
		return err
	}
	f, err := os.Open(expandUser(filename))
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var buffer []string
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			if strings.HasSuffix(line, "\r\n") {
				buffer = append(buffer, line)
			} else {
				line = strings.TrimRight(line, "\n")
				if len(buffer) > 0 {
					line = strings.ReplaceAll(strings.Join(buffer, ""), "\r", "") + line
					buffer = buffer[:0]
				}
				if line != "" {
					r.History().Append(line)
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// WriteHistoryFile writes history to a file in the format ReadHistoryFile
// reads, trimmed to the configured history length.
func (w *Readline) WriteHistoryFile(filename string) error {
	r, err := w.getReader()
	if err != nil {
		return err
	}
	var buf strings.Builder
	for _, entry := range r.History().Trimmed(w.savedHistoryLength) {
		buf.WriteString(strings.ReplaceAll(entry, "\n", "\r\n"))
		buf.WriteByte('\n')
	}
	return os.WriteFile(expandUser(filename), []byte(buf.String()), 0o644)
}

// histLine normalizes an externally supplied history line.
func histLine(line string) string {
	return strings.TrimRight(line, "\n")
}

func expandUser(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
