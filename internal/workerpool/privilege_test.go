//go:build !windows

package workerpool

import (
	"os"
	"testing"
)

func TestDropPrivilegesNoopWhenUnconfigured(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("test assumes a non-root test runner")
	}
	if err := DropPrivileges(Privilege{}); err != nil {
		t.Fatalf("DropPrivileges(Privilege{}) as non-root = %v, want nil", err)
	}
}

func TestDropPrivilegesChrootRequiresCapability(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("test assumes a non-root test runner")
	}
	err := DropPrivileges(Privilege{Chroot: t.TempDir()})
	if err == nil {
		t.Fatalf("DropPrivileges with chroot as non-root: want permission error, got nil")
	}
}
