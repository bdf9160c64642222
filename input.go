package pyrepl

import "unicode/utf8"

// translation is a resolved (command, event) pair produced by a translator.
type translation struct {
	cmd string
	ev  Event
}

// KeymapTranslator turns a stream of key events into (command, event) pairs
// by walking a compiled keymap trie. A key with no binding resolves to the
// invalid command class; a single-character key with no binding resolves to
// the character command class (typically self-insert).
//
// Translators compose as a stack on the Reader: entering incremental search
// pushes the isearch translator, leaving pops it.
type KeymapTranslator struct {
	root, node   *keymapNode
	invalidCmd   string
	characterCmd string

	// data/raw accumulate the keys consumed by the match in progress.
	data, raw string
	results   []translation
}

// NewKeymapTranslator compiles bindings into a translator.
func NewKeymapTranslator(bindings []Binding, invalidCmd, characterCmd string) (*KeymapTranslator, error) {
	root, err := compileKeymap(bindings)
	if err != nil {
		return nil, err
	}
	return &KeymapTranslator{
		root:         root,
		node:         root,
		invalidCmd:   invalidCmd,
		characterCmd: characterCmd,
	}, nil
}

// Push feeds one key event into the translator.
func (t *KeymapTranslator) Push(e Event) {
	if e.Meta {
		t.pushKey("\x1b", "\x1b")
	}
	t.pushKey(e.Data, e.Raw)
}

func (t *KeymapTranslator) pushKey(key, raw string) {
	if child := t.node.children[key]; child != nil {
		t.data += key
		t.raw += raw
		t.node = child
		if child.cmd != "" && len(child.children) == 0 {
			t.emit(child.cmd)
		}
		return
	}

	if t.node != t.root {
		if t.node.cmd != "" {
			// Ambiguous prefix: commit the shorter binding, then
			// reinterpret the key that failed to extend it.
			t.emit(t.node.cmd)
			t.pushKey(key, raw)
			return
		}
		t.data += key
		t.raw += raw
		t.emit(t.invalidCmd)
		return
	}

	t.data, t.raw = key, raw
	if utf8.RuneCountInString(key) == 1 {
		t.emit(t.characterCmd)
	} else {
		t.emit(t.invalidCmd)
	}
}

// Get drains the next resolved (command, event) pair, or returns "" and nil.
func (t *KeymapTranslator) Get() (string, *Event) {
	if len(t.results) == 0 {
		return "", nil
	}
	r := t.results[0]
	t.results = t.results[1:]
	return r.cmd, &r.ev
}

// Pending reports whether the translator is mid-sequence, waiting for more
// keys.
func (t *KeymapTranslator) Pending() bool {
	return t.node != t.root
}

// Ambiguous reports whether the current position both terminates a binding
// and prefixes longer ones. The Reader resolves this by waiting briefly for
// another key and calling Commit if none arrives.
func (t *KeymapTranslator) Ambiguous() bool {
	return t.node != t.root && t.node.cmd != ""
}

// Commit resolves an ambiguous position in favor of the shorter binding.
func (t *KeymapTranslator) Commit() {
	if t.Ambiguous() {
		t.emit(t.node.cmd)
	}
}

func (t *KeymapTranslator) emit(cmd string) {
	t.results = append(t.results, translation{
		cmd: cmd,
		ev:  Event{Kind: "key", Data: t.data, Raw: t.raw},
	})
	t.data, t.raw = "", ""
	t.node = t.root
}
