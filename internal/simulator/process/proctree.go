package process

import "os"

// ProcessTree enumerates and signals the descendants of a tracked process.
// The default implementation shells out to the platform's process tools;
// tests substitute a fake to exercise shutdown paths without real children.
type ProcessTree interface {
	// ListDescendants returns the PIDs of every live descendant of pid,
	// children before grandchildren.
	ListDescendants(pid int) ([]int, error)
	// Signal delivers sig to a single process.
	Signal(pid int, sig os.Signal) error
}
