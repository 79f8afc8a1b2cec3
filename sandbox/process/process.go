// Package process is the OS-process Sandbox Runner backend: it
// materializes a candidate skill's source into a scratch directory,
// compiles and runs it with a wall-clock timeout, and reports
// ok/stdout/stderr/exitCode back to the Engine. Grounded on the
// kill-on-timeout, exit-code-124 pattern used for one-shot process
// execution elsewhere in the corpus.
package process

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Gliksbot/gliksbot/collab"
)

// DefaultTimeout, DefaultMemoryMiB and DefaultMaxStdoutKiB mirror
// spec's default sandbox limits; used whenever SandboxLimits leaves a
// field at its zero value.
const (
	DefaultTimeout      = 10 * time.Second
	DefaultMemoryMiB    = 256
	DefaultMaxStdoutKiB = 1024
)

// driverTemplate is rendered into driver.go alongside the skill's own source so the two
// compile together as one package main: the skill supplies EntryName,
// the driver supplies main().
const driverTemplate = `package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "missing input message argument")
		os.Exit(1)
	}
	fmt.Print(%s(os.Args[1]))
}
`

// Runner executes candidate skills as compiled-and-run Go processes
// under "go run", isolated in a discarded per-invocation scratch
// directory with no network access beyond what the host permits (see
// DESIGN.md for the documented limits of process-level isolation).
type Runner struct {
	goBin string
}

// New constructs a Runner. If goBin is empty, "go" is resolved via
// PATH at invocation time.
func New(goBin string) *Runner {
	return &Runner{goBin: goBin}
}

var _ collab.SandboxRunner = (*Runner)(nil)

// Run implements collab.SandboxRunner.
func (r *Runner) Run(ctx context.Context, source, entryName, inputMessage string, limits collab.SandboxLimits) (collab.SandboxResult, error) {
	limits = normalizeLimits(limits)

	scratch, err := os.MkdirTemp("", "gliksbot-skill-*")
	if err != nil {
		return collab.SandboxResult{}, fmt.Errorf("%w: create scratch dir: %v", collab.ErrInternal, err)
	}
	defer os.RemoveAll(scratch)

	if err := writeSkillFiles(scratch, source, entryName); err != nil {
		return collab.SandboxResult{}, err
	}

	goBin := r.goBin
	if goBin == "" {
		goBin = "go"
	}

	timeout := time.Duration(limits.Timeout) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	launchPath, args := commandFor(goBin, scratch, limits, inputMessage)
	cmd := exec.CommandContext(runCtx, launchPath, args...)
	cmd.Dir = scratch
	cmd.Env = append(os.Environ(), "GOFLAGS=-mod=mod")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	startErr := cmd.Start()
	if startErr != nil {
		if runCtx.Err() != nil {
			// The caller's context (or the time limit) ended before the
			// process started: report a failed run rather than an error.
			timedOut := runCtx.Err() == context.DeadlineExceeded
			return collab.SandboxResult{
				OK:       false,
				Stderr:   startErr.Error(),
				ExitCode: exitCodeOf(cmd, startErr, timedOut),
			}, nil
		}
		return collab.SandboxResult{}, fmt.Errorf("%w: start sandbox process: %v", collab.ErrInternal, startErr)
	}

	waitErr := cmd.Wait()
	duration := time.Since(start)

	timedOut := runCtx.Err() == context.DeadlineExceeded
	if timedOut && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}

	exitCode := exitCodeOf(cmd, waitErr, timedOut)
	stdoutText, truncated := capStdout(stdout.String(), limits.MaxStdoutKiB)
	if truncated {
		stdoutText += "\n...[truncated]"
	}

	result := collab.SandboxResult{
		OK:         exitCode == 0 && !timedOut && stdoutText != "",
		Stdout:     stdoutText,
		Stderr:     stderr.String(),
		ExitCode:   exitCode,
		DurationMs: duration.Milliseconds(),
	}
	return result, nil
}

func writeSkillFiles(scratch, source, entryName string) error {
	skillPath := filepath.Join(scratch, "skill.go")
	if err := os.WriteFile(skillPath, []byte(source), 0o600); err != nil {
		return fmt.Errorf("%w: write skill source: %v", collab.ErrInternal, err)
	}

	driver := fmt.Sprintf(driverTemplate, entryName)
	driverPath := filepath.Join(scratch, "driver.go")
	if err := os.WriteFile(driverPath, []byte(driver), 0o600); err != nil {
		return fmt.Errorf("%w: write sandbox driver: %v", collab.ErrInternal, err)
	}

	modPath := filepath.Join(scratch, "go.mod")
	if err := os.WriteFile(modPath, []byte("module gliksbot.sandbox.skill\n\ngo 1.22\n"), 0o600); err != nil {
		return fmt.Errorf("%w: write sandbox go.mod: %v", collab.ErrInternal, err)
	}
	return nil
}

// commandFor builds the launch command. On unix-like platforms it
// shells through "sh -c" with "ulimit -v" to apply a best-effort
// address-space cap before exec'ing go run; memory enforcement is
// otherwise advisory only (true cgroup/VM isolation is a deployment
// concern, not this backend's). Network isolation is likewise
// best-effort: this backend relies on the host's network namespace
// and does not itself sandbox sockets.
func commandFor(goBin, scratch string, limits collab.SandboxLimits, inputMessage string) (string, []string) {
	runArgs := fmt.Sprintf("%s run . %s", shellQuote(goBin), shellQuote(inputMessage))
	if runtime.GOOS == "windows" {
		return goBin, []string{"run", ".", inputMessage}
	}
	kiB := limits.MemoryMiB * 1024
	script := fmt.Sprintf("ulimit -v %d 2>/dev/null; exec %s", kiB, runArgs)
	return "/bin/sh", []string{"-c", script}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func exitCodeOf(cmd *exec.Cmd, waitErr error, timedOut bool) int {
	switch {
	case timedOut:
		return 124
	case waitErr != nil:
		if ee, ok := waitErr.(*exec.ExitError); ok && ee.ProcessState != nil {
			return ee.ProcessState.ExitCode()
		}
		return 1
	case cmd.ProcessState != nil:
		return cmd.ProcessState.ExitCode()
	default:
		return 0
	}
}

func capStdout(s string, maxKiB int64) (string, bool) {
	max := int(maxKiB * 1024)
	if max <= 0 || len(s) <= max {
		return s, false
	}
	return s[:max], true
}

func normalizeLimits(l collab.SandboxLimits) collab.SandboxLimits {
	if l.Timeout <= 0 {
		l.Timeout = int64(DefaultTimeout / time.Second)
	}
	if l.MemoryMiB <= 0 {
		l.MemoryMiB = DefaultMemoryMiB
	}
	if l.MaxStdoutKiB <= 0 {
		l.MaxStdoutKiB = DefaultMaxStdoutKiB
	}
	return l
}
