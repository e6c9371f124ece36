// Package invoker runs the gt CLI as a subprocess on the pipeline's behalf,
// the only point where the observability backend shells out to the tool it
// watches. Grounded on internal/web.APIHandler.runGtCommand.
package invoker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/gastown/gt/internal/obs"
)

// subcommandPattern restricts the first argument to something that could
// plausibly be a gt subcommand name, matching internal/web/validate.go's
// idPattern convention but anchored to bare words (no dots, since
// subcommands are never dotted).
var subcommandPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// identifierPattern is the safe charset for a bare rig or agent name (spec
// §4.1): alphanumeric, underscore, hyphen only.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// identifierArgPattern additionally allows a single "/" joining two
// identifiers, the "<rig>/<name>" compound form "polecat status" takes.
var identifierArgPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+(/[A-Za-z0-9_-]+)?$`)

// ValidateIdentifier rejects any string that isn't a bare safe identifier,
// for callers validating a rig or agent name before it ever reaches Invoke.
func ValidateIdentifier(s string) error {
	if !identifierPattern.MatchString(s) {
		return obs.ErrInvalidName.WithDetail(s)
	}
	return nil
}

const defaultTimeout = 10 * time.Second

// Invoker runs gt subcommands with a bounded timeout and captures stdout.
type Invoker struct {
	gtPath  string
	workDir string
	timeout time.Duration
}

// New returns an Invoker that runs gtPath (resolved via exec.LookPath rules)
// with the given working directory and default per-call timeout.
func New(gtPath, workDir string, timeout time.Duration) *Invoker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Invoker{gtPath: gtPath, workDir: workDir, timeout: timeout}
}

// Invoke runs "gt <subcommand> <args...>" and returns stdout on success.
// Subcommand names outside subcommandPattern are rejected before exec is
// ever reached, and so is every non-flag argument: rig and agent names
// incorporated from untrusted data (URL path params, client poll:now
// frames) must match identifierArgPattern before any spawn (spec §4.1).
// Stderr is attached as Detail on failure, never mixed into the returned
// stdout so downstream JSON parsing stays clean.
func (inv *Invoker) Invoke(ctx context.Context, subcommand string, args []string) ([]byte, error) {
	if !subcommandPattern.MatchString(subcommand) {
		return nil, obs.ErrInvalidName.WithDetail(subcommand)
	}
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			continue
		}
		if !identifierArgPattern.MatchString(a) {
			return nil, obs.ErrInvalidName.WithDetail(a)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	full := make([]string, 0, len(args)+1)
	full = append(full, subcommand)
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, inv.gtPath, full...)
	if inv.workDir != "" {
		cmd.Dir = inv.workDir
	}
	cmd.Stdin = nil

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return nil, obs.ErrTimeout.WithDetail(fmt.Sprintf("%s %v after %v", subcommand, args, inv.timeout))
	}

	if err != nil {
		exitCode := -1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		return nil, obs.ErrToolFailed.WithDetail(fmt.Sprintf("exit %d: %s", exitCode, stderr.String()))
	}

	return stdout.Bytes(), nil
}

// InvokeJSON is a convenience for subcommands invoked with a trailing
// --json flag, matching the teacher's status/list command pattern.
func (inv *Invoker) InvokeJSON(ctx context.Context, subcommand string, args []string) ([]byte, error) {
	return inv.Invoke(ctx, subcommand, append(append([]string{}, args...), "--json"))
}
