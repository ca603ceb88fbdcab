//go:build linux

package response

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// maxSendfileChunk caps a single sendfile call, matching the kernel's
// per-call transfer limit.
const maxSendfileChunk = 0x7ffff000

// sendFile copies count bytes of f starting at offset directly into the
// socket behind conn. It returns the bytes sent. Connections without a raw
// descriptor, and kernels or file systems that refuse sendfile, yield an
// error wrapping ErrZeroCopyUnsupported so the caller can finish the
// transfer another way. A source that ends early stops the transfer
// without error.
func sendFile(conn net.Conn, f *os.File, offset, count int64) (int64, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, ErrZeroCopyUnsupported
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrZeroCopyUnsupported, err)
	}

	src := int(f.Fd())
	var written int64
	var serr error

	err = raw.Write(func(fd uintptr) bool {
		for written < count {
			n := count - written
			if n > maxSendfileChunk {
				n = maxSendfileChunk
			}
			off := offset + written

			m, e := unix.Sendfile(int(fd), src, &off, int(n))
			if m > 0 {
				written += int64(m)
			}
			switch {
			case e == unix.EAGAIN:
				return false
			case e == unix.EINTR:
				continue
			case e != nil:
				serr = e
				return true
			case m == 0:
				return true
			}
		}
		return true
	})
	if serr == nil {
		serr = err
	}
	if serr == nil {
		return written, nil
	}

	switch {
	case errors.Is(serr, unix.EINVAL), errors.Is(serr, unix.ENOSYS),
		errors.Is(serr, unix.EOPNOTSUPP), errors.Is(serr, unix.ENOTSUP):
		return written, fmt.Errorf("%w: %v", ErrZeroCopyUnsupported, serr)
	}
	return written, serr
}
