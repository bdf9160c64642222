package pyrepl

const killRingMax = 10

// killRing is a fixed size ring of killed text. Consecutive kill commands
// accumulate into a single entry which can be yanked all at once; any other
// command seals the entry. yank-pop rotates the ring.
type killRing struct {
	entries []string
	killing bool
	yanking bool
}

func (k *killRing) reset() {
	k.killing = false
	k.yanking = false
}

// append adds text to the tail of the current entry, opening a new entry if
// the previous command was not a kill.
func (k *killRing) append(text string) {
	k.maybeBeginKill()
	k.entries[len(k.entries)-1] += text
}

// prepend adds text to the head of the current entry, opening a new entry if
// the previous command was not a kill.
func (k *killRing) prepend(text string) {
	k.maybeBeginKill()
	k.entries[len(k.entries)-1] = text + k.entries[len(k.entries)-1]
}

// yank returns the current entry, or "".
func (k *killRing) yank() string {
	if len(k.entries) == 0 {
		return ""
	}
	k.yanking = true
	return k.entries[len(k.entries)-1]
}

// rotate makes the current entry the oldest and the next newest current.
func (k *killRing) rotate() {
	if len(k.entries) == 0 {
		return
	}
	last := k.entries[len(k.entries)-1]
	copy(k.entries[1:], k.entries)
	k.entries[0] = last
}

var killRingKillCmds = map[string]bool{
	"kill-word":          true,
	"backward-kill-word": true,
	"kill-line":          true,
	"unix-line-discard":  true,
}

var killRingYankCmds = map[string]bool{
	"yank":     true,
	"yank-pop": true,
}

// afterCommand maintains the accumulate/rotate state from the name of the
// command that just ran.
func (k *killRing) afterCommand(cmd string) {
	if !killRingKillCmds[cmd] {
		k.killing = false
	}
	if !killRingKillCmds[cmd] && !killRingYankCmds[cmd] {
		k.yanking = false
	}
}

func (k *killRing) maybeBeginKill() {
	if k.killing {
		return
	}
	k.killing = true

	if k.entries == nil {
		k.entries = make([]string, 0, killRingMax)
	}
	if len(k.entries) < cap(k.entries) {
		k.entries = append(k.entries, "")
	} else {
		copy(k.entries, k.entries[1:])
		k.entries[len(k.entries)-1] = ""
	}
}
