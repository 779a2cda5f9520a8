//go:build unix

package stream

import (
	"errors"
	"syscall"
)

func isEINTR(err error) bool {
	return errors.Is(err, syscall.EINTR)
}
