//go:build windows

package process

import (
	"os"
	osexec "os/exec"
	"strconv"
)

type systemProcessTree struct{}

// NewSystemProcessTree returns a ProcessTree backed by taskkill.
func NewSystemProcessTree() ProcessTree {
	return systemProcessTree{}
}

func (systemProcessTree) ListDescendants(pid int) ([]int, error) {
	// taskkill /T takes the whole tree down in Signal, so enumeration
	// is not needed on Windows.
	return nil, nil
}

func (systemProcessTree) Signal(pid int, _ os.Signal) error {
	return osexec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run()
}
