// Package proc wraps child-process creation for the rest of the plugin.
// All subprocess execution goes through Runner so callers get uniform
// timeout handling and captured output.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds any child process that does not ask for its own.
const DefaultTimeout = 2 * time.Minute

// Result holds the outcome of a completed child process. A non-zero exit
// code is not an error at this layer; callers decide what it means.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// ErrTimeout is returned when the child was killed for exceeding its deadline.
var ErrTimeout = errors.New("process timed out")

// Options controls a single Run invocation.
type Options struct {
	Dir         string        // working directory, empty for process cwd
	Stdin       []byte        // bytes written to the child's stdin
	Timeout     time.Duration // zero means DefaultTimeout
	MergeStderr bool          // interleave stderr into Stdout
	Env         []string      // extra environment entries, appended to os.Environ
}

// Runner spawns child processes. The zero value is ready to use.
type Runner struct{}

// Run executes argv and waits for it to finish.
func (r *Runner) Run(argv []string, opts Options) (*Result, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty argv")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // G204: argv is built by callers, not user shell input
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if len(opts.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(opts.Stdin)
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), opts.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if opts.MergeStderr {
		cmd.Stderr = &stdout
	} else {
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, strings.Join(argv, " "))
	}
	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		// Spawn failure: binary missing, permission denied, etc.
		return nil, fmt.Errorf("spawning %s: %w", argv[0], err)
	}
	return res, nil
}

// CheckBashSyntax runs `bash -n` over a script to validate its syntax
// without executing it. Returns nil when the script parses.
func (r *Runner) CheckBashSyntax(script string) error {
	res, err := r.Run([]string{"bash", "-n"}, Options{Stdin: []byte(script), Timeout: 10 * time.Second})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("bash syntax check failed: %s", strings.TrimSpace(string(res.Stderr)))
	}
	return nil
}
