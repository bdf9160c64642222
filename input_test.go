package pyrepl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func keyEvent(data string) Event {
	return Event{Kind: "key", Data: data, Raw: data}
}

func TestTranslatorBasic(t *testing.T) {
	tr, err := NewKeymapTranslator([]Binding{
		{`\C-a`, "beginning-of-line"},
		{`\<up>`, "up"},
		{`\M-d`, "kill-word"},
	}, "invalid-key", "self-insert")
	require.NoError(t, err)

	tr.Push(keyEvent("\x01"))
	cmd, ev := tr.Get()
	require.Equal(t, "beginning-of-line", cmd)
	require.Equal(t, "\x01", ev.Data)

	tr.Push(keyEvent("up"))
	cmd, _ = tr.Get()
	require.Equal(t, "up", cmd)

	// A meta event expands to an ESC prefix.
	tr.Push(Event{Kind: "key", Data: "d", Raw: "\x1bd", Meta: true})
	cmd, _ = tr.Get()
	require.Equal(t, "kill-word", cmd)

	// The same binding reached by two separate events.
	tr.Push(keyEvent("\x1b"))
	cmd, ev = tr.Get()
	require.Equal(t, "", cmd)
	require.Nil(t, ev)
	require.True(t, tr.Pending())
	tr.Push(keyEvent("d"))
	cmd, _ = tr.Get()
	require.Equal(t, "kill-word", cmd)
}

func TestTranslatorFallbacks(t *testing.T) {
	tr, err := NewKeymapTranslator([]Binding{
		{`\C-a`, "beginning-of-line"},
		{`\M-d`, "kill-word"},
	}, "invalid-key", "self-insert")
	require.NoError(t, err)

	// Unbound single character inserts itself.
	tr.Push(keyEvent("x"))
	cmd, ev := tr.Get()
	require.Equal(t, "self-insert", cmd)
	require.Equal(t, "x", ev.Data)

	// Unbound named key is invalid.
	tr.Push(keyEvent("up"))
	cmd, _ = tr.Get()
	require.Equal(t, "invalid-key", cmd)

	// Mismatch mid-sequence is invalid too.
	tr.Push(keyEvent("\x1b"))
	_, ev = tr.Get()
	require.Nil(t, ev)
	tr.Push(keyEvent("q"))
	cmd, ev = tr.Get()
	require.Equal(t, "invalid-key", cmd)
	require.Equal(t, "\x1bq", ev.Data)
}

func TestTranslatorAmbiguous(t *testing.T) {
	tr, err := NewKeymapTranslator([]Binding{
		{`\C-x`, "short"},
		{`\C-xl`, "long"},
	}, "invalid-key", "self-insert")
	require.NoError(t, err)

	// Extended in time: the longer binding wins.
	tr.Push(keyEvent("\x18"))
	require.True(t, tr.Ambiguous())
	_, ev := tr.Get()
	require.Nil(t, ev)
	tr.Push(keyEvent("l"))
	cmd, _ := tr.Get()
	require.Equal(t, "long", cmd)

	// Timed out: the shorter binding is committed.
	tr.Push(keyEvent("\x18"))
	tr.Commit()
	cmd, _ = tr.Get()
	require.Equal(t, "short", cmd)
	require.False(t, tr.Pending())

	// A key that cannot extend the prefix commits the shorter binding and
	// is reinterpreted from the root.
	tr.Push(keyEvent("\x18"))
	tr.Push(keyEvent("z"))
	cmd, _ = tr.Get()
	require.Equal(t, "short", cmd)
	cmd, ev = tr.Get()
	require.Equal(t, "self-insert", cmd)
	require.Equal(t, "z", ev.Data)
}
