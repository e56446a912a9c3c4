// internal/script/test.go
package script

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/halfduplex/dynabus/internal/packet"
)

// cmdTest handles the scripted-bus directives:
//
//	test cmd <id_hex> <instr> <hex byte> ...
//	test cmd-raw <hex byte> ...
//	test rsp <id_hex> <error_name|none> <hex byte> ...
//	test rsp-raw <hex byte> ...
//	test rsp-timeout
//	test success <command> / test error <command> / test output "<s>" <command>
func cmdTest(r *Runner, args []string) (string, error) {
	if r.tb == nil {
		return "", errors.New("script: test directives require the test bus (-t)")
	}
	if len(args) == 0 {
		return "", errors.New("script: test: expecting a directive")
	}
	directive := args[0]
	rest := args[1:]

	switch directive {
	case "cmd":
		if len(rest) < 2 {
			return "", errors.New("script: test cmd: expecting id and instruction")
		}
		id, err := parseHexByte(rest[0])
		if err != nil {
			return "", err
		}
		instr, err := packet.ParseInstr(rest[1])
		if err != nil {
			return "", err
		}
		params, err := parseHexBytes(rest[2:])
		if err != nil {
			return "", err
		}
		r.tb.ExpectCmd(id, instr, params)
		return "", nil

	case "cmd-raw":
		frame, err := parseHexBytes(rest)
		if err != nil {
			return "", err
		}
		r.tb.ExpectRaw(frame)
		return "", nil

	case "rsp":
		if len(rest) < 2 {
			return "", errors.New("script: test rsp: expecting id and error flags")
		}
		id, err := parseHexByte(rest[0])
		if err != nil {
			return "", err
		}
		flags, err := packet.ParseErrorFlags(rest[1])
		if err != nil {
			return "", err
		}
		params, err := parseHexBytes(rest[2:])
		if err != nil {
			return "", err
		}
		r.tb.QueueStatus(id, flags, params)
		return "", nil

	case "rsp-raw":
		frame, err := parseHexBytes(rest)
		if err != nil {
			return "", err
		}
		r.tb.QueueRaw(frame)
		return "", nil

	case "rsp-timeout":
		r.tb.QueueTimeout()
		return "", nil

	case "rsp-none":
		r.tb.QueueNoResponse()
		return "", nil

	case "success":
		out, err := r.execute(rest)
		if err != nil {
			return r.fail(rest, fmt.Sprintf("expected success, got: %v", err)), nil
		}
		return r.pass(out), nil

	case "error":
		out, err := r.execute(rest)
		if err == nil {
			return r.fail(rest, "expected an error, command succeeded"), nil
		}
		return r.pass(out), nil

	case "output":
		if len(rest) < 2 {
			return "", errors.New("script: test output: expecting expected text and a command")
		}
		want := rest[0]
		out, err := r.execute(rest[1:])
		if err != nil {
			return r.fail(rest[1:], fmt.Sprintf("expected output, got: %v", err)), nil
		}
		if out != want {
			return r.fail(rest[1:], fmt.Sprintf("expected output %q, got %q", want, out)), nil
		}
		return r.pass(out), nil
	}
	return "", fmt.Errorf("script: test: unrecognized directive %q", directive)
}

func (r *Runner) pass(out string) string {
	r.passed++
	return out
}

func (r *Runner) fail(cmd []string, msg string) string {
	r.failed++
	r.log.Printf("FAIL: %s: %s", strings.Join(cmd, " "), msg)
	return ""
}

func parseHexByte(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 8)
	if err != nil {
		return 0, fmt.Errorf("script: expecting a hex byte, found %q", s)
	}
	return byte(v), nil
}

func parseHexBytes(args []string) ([]byte, error) {
	data := make([]byte, 0, len(args))
	for _, s := range args {
		b, err := parseHexByte(s)
		if err != nil {
			return nil, err
		}
		data = append(data, b)
	}
	return data, nil
}
