//go:build darwin

package pyrepl

import "golang.org/x/sys/unix"

const (
	ioctlReadTermios  = unix.TIOCGETA
	ioctlWriteTermios = unix.TIOCSETAW
)

func tcflushInput(fd int) error {
	return unix.IoctlSetPointerInt(fd, unix.TIOCFLUSH, unix.FREAD)
}

func (c *UnixConsole) outSpeed() uint32 {
	if c.savedTermios == nil {
		return 0
	}
	return uint32(c.savedTermios.Ospeed)
}

// baudRates maps termios speed constants to bits per second, for computing
// how many pad characters cover a capability delay.
var baudRates = map[uint32]int{
	unix.B0:      0,
	unix.B50:     50,
	unix.B75:     75,
	unix.B110:    110,
	unix.B134:    134,
	unix.B150:    150,
	unix.B200:    200,
	unix.B300:    300,
	unix.B600:    600,
	unix.B1200:   1200,
	unix.B1800:   1800,
	unix.B2400:   2400,
	unix.B4800:   4800,
	unix.B9600:   9600,
	unix.B19200:  19200,
	unix.B38400:  38400,
	unix.B57600:  57600,
	unix.B115200: 115200,
	unix.B230400: 230400,
}
