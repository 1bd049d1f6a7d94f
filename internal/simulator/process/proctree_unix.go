//go:build !windows

package process

import (
	"os"
	osexec "os/exec"
	"strconv"
	"strings"
	"syscall"
)

type systemProcessTree struct{}

// NewSystemProcessTree returns a ProcessTree backed by pgrep and kill(2).
func NewSystemProcessTree() ProcessTree {
	return systemProcessTree{}
}

func (systemProcessTree) ListDescendants(pid int) ([]int, error) {
	var out []int
	frontier := []int{pid}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		children, err := childrenOf(next)
		if err != nil {
			return out, err
		}
		out = append(out, children...)
		frontier = append(frontier, children...)
	}
	return out, nil
}

func (systemProcessTree) Signal(pid int, sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		s = syscall.SIGKILL
	}
	return syscall.Kill(pid, s)
}

func childrenOf(pid int) ([]int, error) {
	raw, err := osexec.Command("pgrep", "-P", strconv.Itoa(pid)).Output()
	if err != nil {
		// pgrep exits 1 when there are no matches.
		if ee, ok := err.(*osexec.ExitError); ok && ee.ExitCode() == 1 {
			return nil, nil
		}
		return nil, err
	}
	var pids []int
	for _, line := range strings.Fields(string(raw)) {
		child, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		pids = append(pids, child)
	}
	return pids, nil
}
