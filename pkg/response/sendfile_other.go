//go:build !linux

package response

import (
	"net"
	"os"
)

func sendFile(net.Conn, *os.File, int64, int64) (int64, error) {
	return 0, ErrZeroCopyUnsupported
}
