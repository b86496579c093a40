//go:build windows

package platform

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	shell32                                     = windows.NewLazySystemDLL("shell32.dll")
	procSetCurrentProcessExplicitAppUserModelID = shell32.NewProc("SetCurrentProcessExplicitAppUserModelID")
)

// SetAppUserModelID sets the process-wide AppUserModelID used by the Windows
// taskbar to group windows and attribute notifications.
func SetAppUserModelID(id string) error {
	if err := procSetCurrentProcessExplicitAppUserModelID.Find(); err != nil {
		return fmt.Errorf("SetCurrentProcessExplicitAppUserModelID unavailable: %w", err)
	}
	ptr, err := windows.UTF16PtrFromString(id)
	if err != nil {
		return fmt.Errorf("invalid app user model id %q: %w", id, err)
	}
	hr, _, _ := procSetCurrentProcessExplicitAppUserModelID.Call(uintptr(unsafe.Pointer(ptr)))
	if hr != 0 {
		return fmt.Errorf("SetCurrentProcessExplicitAppUserModelID failed: HRESULT 0x%08x", uint32(hr))
	}
	return nil
}
