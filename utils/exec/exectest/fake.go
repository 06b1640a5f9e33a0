package exectest

import (
	"fmt"
	"strings"
)

// Result is the canned outcome for one command line.
type Result struct {
	Output string
	Err    error
}

// ExitError is a scripted command failure carrying an exit status. It
// satisfies the ExitCode contract that exec.ExitStatus extracts, the same
// one a real *exec.ExitError provides.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) ExitCode() int {
	return e.Code
}

// FakeExecutor implements exec.Executor by replaying canned results.
// Results is keyed by the full command line, command and arguments joined
// by single spaces. Command lines without an entry fail the call, so a
// test notices any invocation it did not script. Every invocation is
// recorded in Commands in order.
type FakeExecutor struct {
	Results  map[string]Result
	Commands []string
}

func (f *FakeExecutor) ExecuteCommand(command string, arg ...string) error {
	_, err := f.run(command, arg...)
	return err
}

func (f *FakeExecutor) ExecuteCommandWithEnv(env []string, command string, arg ...string) error {
	_, err := f.run(command, arg...)
	return err
}

func (f *FakeExecutor) ExecuteCommandWithOutput(command string, arg ...string) (string, error) {
	return f.run(command, arg...)
}

func (f *FakeExecutor) ExecuteCommandWithCombinedOutput(command string, arg ...string) (string, error) {
	return f.run(command, arg...)
}

func (f *FakeExecutor) run(command string, arg ...string) (string, error) {
	line := strings.Join(append([]string{command}, arg...), " ")
	f.Commands = append(f.Commands, line)

	res, ok := f.Results[line]
	if !ok {
		return "", fmt.Errorf("unexpected command: %s", line)
	}
	return res.Output, res.Err
}
