package exec

import (
	"errors"
)

// ExitStatus extracts the process exit status carried by err. The second
// return is false when err did not come from a process that ran and exited.
// Any error chain carrying an ExitCode method qualifies, which covers both
// *exec.ExitError and test doubles.
func ExitStatus(err error) (int, bool) {
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode(), true
	}
	return 0, false
}
