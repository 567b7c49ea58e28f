package platform

import (
	"fmt"
	"syscall"
	"time"
	"unsafe"
)

var (
	user32          = syscall.NewLazyDLL("user32.dll")
	kernel32        = syscall.NewLazyDLL("kernel32.dll")
	procLastInput   = user32.NewProc("GetLastInputInfo")
	procTickCount64 = kernel32.NewProc("GetTickCount64")
)

type lastInputInfo struct {
	size uint32
	time uint32
}

type idleProvider struct{}

func newIdleProvider() IdleProvider {
	return idleProvider{}
}

func (idleProvider) IdleDuration() (time.Duration, error) {
	info := lastInputInfo{size: uint32(unsafe.Sizeof(lastInputInfo{}))}
	if ok, _, err := procLastInput.Call(uintptr(unsafe.Pointer(&info))); ok == 0 {
		return 0, fmt.Errorf("get last input info: %w", err)
	}
	now, _, _ := procTickCount64.Call()
	// GetLastInputInfo reports a 32-bit tick count that wraps every 49 days.
	idle := uint32(uint64(now)) - info.time
	return time.Duration(idle) * time.Millisecond, nil
}
