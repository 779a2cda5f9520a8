//go:build !windows

package workerpool

import (
	"fmt"
	"syscall"
)

// DropPrivileges implements spec.md §4.8's chroot/setgid/setuid sequence,
// performed by a worker after opening every file it will ever need
// (listening socket and PPC channel are both already inherited as open
// fds by this point) and before accepting its first connection.
//
// Order matters: chroot must happen while still root (it requires
// CAP_SYS_CHROOT), and setgid must happen before setuid (dropping the
// group id after the user id would fail once uid is unprivileged).
func DropPrivileges(p Privilege) error {
	if p.Chroot != "" {
		if err := syscall.Chroot(p.Chroot); err != nil {
			return fmt.Errorf("workerpool: chroot %s: %w", p.Chroot, err)
		}
		if err := syscall.Chdir("/"); err != nil {
			return fmt.Errorf("workerpool: chdir after chroot: %w", err)
		}
	}
	if p.SetGID != 0 {
		if err := syscall.Setgid(p.SetGID); err != nil {
			return fmt.Errorf("workerpool: setgid %d: %w", p.SetGID, err)
		}
	}
	if p.SetUID != 0 {
		if err := syscall.Setuid(p.SetUID); err != nil {
			return fmt.Errorf("workerpool: setuid %d: %w", p.SetUID, err)
		}
	}
	if !p.AllowRoot && syscall.Getuid() == 0 && p.SetUID == 0 {
		return fmt.Errorf("workerpool: refusing to serve as root without allow_root or set_uid configured")
	}
	return nil
}
