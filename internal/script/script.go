// internal/script/script.go

// Package script executes command and test-script lines against the device
// registry: device commands (servo 1 get present-temp), bus-wide commands
// (scan, action), and the test directives that drive the scripted bus.
package script

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/google/shlex"

	"github.com/halfduplex/dynabus/internal/bus"
	"github.com/halfduplex/dynabus/internal/devtype"
	"github.com/halfduplex/dynabus/internal/testbus"
)

// Runner dispatches command lines. Test directives require a scripted bus.
type Runner struct {
	registry *devtype.Registry
	trans    *bus.Transactor
	tb       *testbus.Bus // nil outside test mode
	out      io.Writer
	log      *log.Logger

	passed int
	failed int
}

// Options configures a Runner.
type Options struct {
	Registry *devtype.Registry
	Trans    *bus.Transactor
	TestBus  *testbus.Bus
	Out      io.Writer
	Logger   *log.Logger
}

// NewRunner builds a runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Registry == nil || opts.Trans == nil {
		return nil, errors.New("script: registry and transactor required")
	}
	if opts.Out == nil {
		return nil, errors.New("script: output writer required")
	}
	l := opts.Logger
	if l == nil {
		l = log.Default()
	}
	return &Runner{
		registry: opts.Registry,
		trans:    opts.Trans,
		tb:       opts.TestBus,
		out:      opts.Out,
		log:      l,
	}, nil
}

// RunScript executes lines from rd until EOF. Command errors are reported
// and the script continues; only test assertions count toward the verdict.
func (r *Runner) RunScript(rd io.Reader) error {
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		if err := r.RunLine(scanner.Text()); err != nil {
			r.log.Printf("Error: %v", err)
		}
	}
	return scanner.Err()
}

// RunLine tokenizes and executes one line, printing its output.
func (r *Runner) RunLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("script: %v", err)
	}
	out, err := r.execute(args)
	if err != nil {
		return err
	}
	if out != "" {
		fmt.Fprintln(r.out, out)
	}
	return nil
}

// Counts returns the test assertion tallies.
func (r *Runner) Counts() (passed, failed int) {
	return r.passed, r.failed
}

// Finish checks end-of-script conditions. In test mode leftover
// expectations fail the run.
func (r *Runner) Finish() error {
	if r.tb != nil {
		if err := r.tb.Drained(); err != nil {
			r.failed++
			return err
		}
	}
	if r.failed > 0 {
		return fmt.Errorf("script: %d assertion(s) failed", r.failed)
	}
	return nil
}

// execute dispatches one tokenized command and returns its output.
func (r *Runner) execute(args []string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	verb := args[0]
	if h, ok := commands[verb]; ok {
		return h(r, args[1:])
	}
	// Anything else is a device-type command: <type> <id> <verb> ...
	typ, err := r.registry.Get(verb)
	if err != nil {
		return "", fmt.Errorf("script: unrecognized command %q", verb)
	}
	return r.deviceCommand(typ, args[1:])
}
