package pyrepl

import (
	"io"
	"os"
)

// Option configures a Reader.
type Option interface {
	apply(r *Reader)
}

type optionFunc func(r *Reader)

func (f optionFunc) apply(r *Reader) { f(r) }

// WithFeatures installs additional features beyond history and completion.
func WithFeatures(features ...Feature) Option {
	return optionFunc(func(r *Reader) {
		r.features = append(r.features, features...)
	})
}

// WithMoreLines enables multi-line input. When enter is pressed, the input
// finishes only if fn reports the text complete; otherwise a newline is
// inserted.
func WithMoreLines(fn func(text string) bool) Option {
	return optionFunc(func(r *Reader) {
		r.moreLines = fn
	})
}

// WithStartupHook runs fn at the start of every ReadLine, after the reader
// state has been reset. The hook typically pre-fills the buffer with
// Insert.
func WithStartupHook(fn func()) Option {
	return optionFunc(func(r *Reader) {
		r.startupHook = fn
	})
}

// WithCompleter installs the completion candidate source.
func WithCompleter(fn Completer) Option {
	return optionFunc(func(r *Reader) {
		r.completion.SetCompleter(fn)
	})
}

// WithWordCharacters extends the WORD syntax class with extra characters;
// language shells typically add "._0123456789".
func WithWordCharacters(chars string) Option {
	return optionFunc(func(r *Reader) {
		for _, ch := range chars {
			r.wordExtras[ch] = true
		}
	})
}

// WithKeymap adds bindings on top of the defaults. Later bindings win.
func WithKeymap(bindings ...Binding) Option {
	return optionFunc(func(r *Reader) {
		r.extraKeymap = append(r.extraKeymap, bindings...)
	})
}

// ConsoleOption configures a UnixConsole.
type ConsoleOption interface {
	applyConsole(c *UnixConsole)
}

type consoleOptionFunc func(c *UnixConsole)

func (f consoleOptionFunc) applyConsole(c *UnixConsole) { f(c) }

// WithTTY points the console at a terminal other than stdin/stdout.
func WithTTY(tty *os.File) ConsoleOption {
	return consoleOptionFunc(func(c *UnixConsole) {
		c.inFD = int(tty.Fd())
		c.outFD = int(tty.Fd())
	})
}

// WithFDs sets the input and output file descriptors individually.
func WithFDs(in, out int) ConsoleOption {
	return consoleOptionFunc(func(c *UnixConsole) {
		c.inFD = in
		c.outFD = out
	})
}

// WithTerm overrides $TERM for capability setup.
func WithTerm(term string) ConsoleOption {
	return consoleOptionFunc(func(c *UnixConsole) {
		c.term = term
	})
}

// WithTerminfo substitutes a capability database for the builtin ANSI set.
func WithTerminfo(ti Terminfo) ConsoleOption {
	return consoleOptionFunc(func(c *UnixConsole) {
		c.ti = ti
	})
}

// WithHPA enables hpa-based horizontal motion. Off by default: hpa is
// mishandled by some telnet servers.
func WithHPA() ConsoleOption {
	return consoleOptionFunc(func(c *UnixConsole) {
		c.useHPA = true
	})
}

// WithOutput redirects console output to w instead of the output file
// descriptor. Primarily useful for tests.
func WithOutput(w io.Writer) ConsoleOption {
	return consoleOptionFunc(func(c *UnixConsole) {
		c.outW = w
	})
}
