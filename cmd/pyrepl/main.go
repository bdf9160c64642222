package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/bretello/pyrepl"
)

var keywords = []string{
	"False", "None", "True", "and", "as", "assert", "async", "await",
	"break", "class", "continue", "def", "del", "elif", "else", "except",
	"finally", "for", "from", "global", "if", "import", "in", "is",
	"lambda", "nonlocal", "not", "or", "pass", "print", "raise", "return",
	"try", "while", "with", "yield",
}

func init() {
	sort.Strings(keywords)
}

func completer(text []rune, wordStart, pos int) []string {
	word := string(text[wordStart:pos])
	if word == "" {
		return nil
	}
	i := sort.SearchStrings(keywords, word)
	j := i
	for ; j < len(keywords); j++ {
		if !strings.HasPrefix(keywords[j], word) {
			break
		}
	}
	return keywords[i:j]
}

// moreLines asks for continuation lines while the statement looks open:
// a trailing colon or backslash, or, once the input spans several lines,
// until a blank line ends it.
func moreLines(text string) bool {
	trimmed := strings.TrimRight(text, " \t")
	if strings.HasSuffix(trimmed, "\\") {
		return true
	}
	if strings.HasSuffix(trimmed, ":") {
		return true
	}
	if strings.Contains(text, "\n") {
		last := text[strings.LastIndexByte(text, '\n')+1:]
		return strings.TrimSpace(last) != ""
	}
	return false
}

func main() {
	fmt.Println("# pyrepl demo -- C-d on an empty line exits")

	rl := pyrepl.NewReadline(os.Stdin, os.Stdout)
	rl.SetCompleter(completer)

	const histFile = "~/.pyrepl_demo_history"
	_ = rl.ReadHistoryFile(histFile)
	defer func() {
		if err := rl.WriteHistoryFile(histFile); err != nil {
			log.Printf("writing history: %v", err)
		}
	}()

	for {
		text, err := rl.MultilineInput(moreLines, ">>> ", "... ")
		switch {
		case errors.Is(err, io.EOF):
			fmt.Println()
			return
		case errors.Is(err, pyrepl.ErrInterrupted):
			fmt.Println("KeyboardInterrupt")
			continue
		case err != nil:
			log.Fatal(err)
		}
		fmt.Printf("read %q\n", text)
	}
}
