package pyrepl

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
)

// screenNamedKeys maps named <...> tokens in datadriven input to key names.
var screenNamedKeys = map[string]string{
	"Left": "left", "Right": "right", "Up": "up", "Down": "down",
	"Home": "home", "End": "end", "Backspace": "backspace",
	"Delete": "delete", "PageUp": "page up", "PageDown": "page down",
}

func screenEvents(t *testing.T, input string) []Event {
	t.Helper()
	var events []Event
	for len(input) > 0 {
		if input[0] == '<' {
			end := strings.IndexByte(input, '>')
			if end < 0 {
				t.Fatalf("unterminated token in %q", input)
			}
			tok := input[1:end]
			input = input[end+1:]
			switch {
			case tok == "Enter":
				events = append(events, Event{Kind: "key", Data: "\r", Raw: "\r"})
			case tok == "Tab":
				events = append(events, Event{Kind: "key", Data: "\t", Raw: "\t"})
			case tok == "Esc":
				events = append(events, Event{Kind: "key", Data: "\x1b", Raw: "\x1b"})
			case strings.HasPrefix(tok, "C-"):
				ch := rune(tok[2] & 0x1f)
				events = append(events, Event{Kind: "key", Data: string(ch), Raw: string(ch)})
			case strings.HasPrefix(tok, "M-"):
				events = append(events, Event{Kind: "key", Data: tok[2:], Raw: "\x1b" + tok[2:], Meta: true})
			default:
				name, ok := screenNamedKeys[tok]
				if !ok {
					t.Fatalf("unknown token <%s>", tok)
				}
				events = append(events, Event{Kind: "key", Data: name, Raw: ""})
			}
			continue
		}
		events = append(events, Event{Kind: "key", Data: input[:1], Raw: input[:1]})
		input = input[1:]
	}
	return events
}

func TestScreen(t *testing.T) {
	var tc *testConsole
	var r *Reader

	render := func(result string, finished bool) string {
		var buf strings.Builder
		for _, row := range tc.screen {
			fmt.Fprintf(&buf, "|%s\n", row)
		}
		fmt.Fprintf(&buf, "cursor: (%d, %d)", tc.cx, tc.cy)
		if finished {
			fmt.Fprintf(&buf, "\nresult: %q", result)
		}
		return buf.String()
	}

	datadriven.RunTest(t, "testdata/screen", func(t *testing.T, td *datadriven.TestData) string {
		switch td.Cmd {
		case "new":
			var width, height int
			td.ScanArgs(t, "width", &width)
			td.ScanArgs(t, "height", &height)
			tc = newTestConsole(width, height)
			var err error
			r, err = NewReader(tc)
			if err != nil {
				t.Fatal(err)
			}
			r.SetPrompts("> ", ". ", "> ", ". ")
			if err := r.prepare(); err != nil {
				t.Fatal(err)
			}
			r.refresh()
			return ""

		case "add-history":
			for _, line := range strings.Split(td.Input, "\n") {
				r.History().Append(line)
			}
			return ""

		case "input":
			tc.push(screenEvents(t, td.Input)...)
			finished := false
			result := ""
			for !finished {
				if len(tc.events) == 0 && len(r.translator().results) == 0 {
					if r.translator().Ambiguous() {
						r.translator().Commit()
						continue
					}
					break
				}
				if err := r.handle1(false); err != nil {
					return fmt.Sprintf("error: %v", err)
				}
				if r.finished {
					finished = true
					result = r.Text()
				}
			}
			out := render(result, finished)
			if finished {
				if err := r.prepare(); err != nil {
					t.Fatal(err)
				}
				r.refresh()
			}
			return out

		default:
			return fmt.Sprintf("unknown command: %s", td.Cmd)
		}
	})
}
