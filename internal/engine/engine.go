// Package engine drives the external TeX toolchain: one invocation per pass,
// working directory pinned to the job workspace, output captured, and the
// process group killed when the pass deadline or cancellation fires.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/texforge/texforge/internal/logfields"
)

// Variant selects which installed toolchain binary to invoke.
type Variant string

const (
	PDFLaTeX Variant = "pdflatex"
	XeLaTeX  Variant = "xelatex"
	LuaLaTeX Variant = "lualatex"
)

// Valid reports whether the variant is one of the supported engines.
func (v Variant) Valid() bool {
	switch v {
	case PDFLaTeX, XeLaTeX, LuaLaTeX:
		return true
	}
	return false
}

var (
	// ErrEngineUnavailable indicates the engine binary could not be located or
	// started. Distinct from a compile error, which is a normal PassResult
	// with a non-zero exit code.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrPassTimeout indicates the per-pass deadline elapsed and the engine
	// process group was killed.
	ErrPassTimeout = errors.New("pass timed out")
)

// SourceFileName is the fixed name the submitted document is written under.
const SourceFileName = "document.tex"

// PassResult is the outcome of one engine invocation.
type PassResult struct {
	Pass     int
	ExitCode int
	Output   []byte
	Duration time.Duration
}

// Driver invokes the engine binary against a workspace directory.
// The driver executes and captures; it never interprets file content.
type Driver struct {
	binary  string
	variant Variant
	timeout time.Duration
}

// NewDriver resolves the engine binary for the variant. Returns
// ErrEngineUnavailable when the binary is not on PATH.
func NewDriver(v Variant, perPassTimeout time.Duration) (*Driver, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: unknown engine variant %q", ErrEngineUnavailable, v)
	}
	path, err := exec.LookPath(string(v))
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found in PATH", ErrEngineUnavailable, v)
	}
	return &Driver{binary: path, variant: v, timeout: perPassTimeout}, nil
}

// NewDriverForBinary builds a driver around an explicit executable path.
// Used by tests and by deployments with engines outside PATH.
func NewDriverForBinary(binary string, perPassTimeout time.Duration) *Driver {
	return &Driver{binary: binary, variant: Variant(binary), timeout: perPassTimeout}
}

// Variant returns the engine variant this driver invokes.
func (d *Driver) Variant() Variant { return d.variant }

// RunPass executes one compilation pass in dir. The spawned process and any
// children are killed as a group if the per-pass timeout elapses or ctx is
// cancelled; no process outlives the call.
//
// A non-zero engine exit is returned as a normal PassResult with a nil error.
// The error return is reserved for timeout, cancellation, and spawn failure.
func (d *Driver) RunPass(ctx context.Context, dir string, pass int) (PassResult, error) {
	passCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(passCtx, d.binary,
		"-interaction=nonstopmode",
		"-halt-on-error",
		"-file-line-error",
		SourceFileName,
	)
	cmd.Dir = dir
	configureProcessGroup(cmd)
	cmd.Cancel = func() error {
		terminateProcessGroup(cmd)
		return nil
	}
	// Backstop for a child still holding the output pipes after the kill.
	cmd.WaitDelay = 5 * time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return PassResult{Pass: pass}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	err := cmd.Wait()
	res := PassResult{
		Pass:     pass,
		Output:   out.Bytes(),
		Duration: time.Since(start),
	}

	switch {
	case passCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		slog.Warn("Engine pass timed out",
			logfields.Engine(string(d.variant)), logfields.Pass(pass))
		return res, fmt.Errorf("%w after %s", ErrPassTimeout, d.timeout)
	case ctx.Err() != nil:
		// Parent context fired: overall timeout or caller cancellation.
		return res, ctx.Err()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return res, nil
}
