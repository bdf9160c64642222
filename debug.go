package pyrepl

import (
	"fmt"
	"io"
	"os"
	"sync"
)

var trc = struct {
	sync.Once
	w   io.WriteCloser
	err error
}{}

func initTrace() {
	path := os.Getenv("PYREPL_TRACE")
	if path == "" {
		return
	}
	f, err := os.Create(path)
	if err != nil {
		trc.err = err
		return
	}
	trc.w = f
}

// tracef logs to the file named by $PYREPL_TRACE, if set. The terminal is
// owned by the console, so diagnostics can never go to stdout/stderr.
func tracef(format string, args ...interface{}) {
	trc.Do(initTrace)
	if trc.w == nil {
		return
	}
	fmt.Fprintf(trc.w, format, args...)
}
