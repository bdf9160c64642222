// termdebug runs a command under a pty and logs every byte crossing the
// terminal boundary, for debugging rendering and key decoding.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

func tapCopy(dst io.Writer, src io.Reader, tap io.Writer, name string) {
	buf := make([]byte, 4096)
	for {
		nr, errR := src.Read(buf)
		if nr > 0 {
			fmt.Fprintf(tap, "%s: %q\n", name, buf[:nr])
			if _, errW := dst.Write(buf[:nr]); errW != nil {
				fmt.Fprintf(tap, "%s: write error: %v\n", name, errW)
				return
			}
		}
		if errR != nil {
			if errR != io.EOF {
				fmt.Fprintf(tap, "%s: read error: %v\n", name, errR)
			}
			return
		}
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <command> [<args>]\n", os.Args[0])
		os.Exit(1)
	}

	tap, err := os.Create("termdebug.log")
	if err != nil {
		log.Fatal(err)
	}
	defer tap.Close()

	ptmx, err := pty.Start(exec.Command(os.Args[1], os.Args[2:]...))
	if err != nil {
		log.Fatal(err)
	}
	defer ptmx.Close()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	go func() {
		for range winch {
			if err := pty.InheritSize(os.Stdin, ptmx); err != nil {
				fmt.Fprintf(tap, "resize error: %v\n", err)
			}
		}
	}()
	winch <- syscall.SIGWINCH
	defer func() { signal.Stop(winch); close(winch) }()

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		log.Fatal(err)
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	go tapCopy(ptmx, os.Stdin, tap, " in")
	tapCopy(os.Stdout, ptmx, tap, "out")
}
