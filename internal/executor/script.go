package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// scriptDenylist is the fixed set of identifiers associated with process,
// module, filesystem or timer access and dynamic code generation. Matching
// is a plain substring scan; it is trivially bypassable (concatenation,
// alternate spellings) and is NOT the isolation boundary — the fresh goja
// runtime with no host bindings plus the interrupt timeout is. The scan only
// exists to reject the obvious cases before spinning up a VM.
var scriptDenylist = []string{
	"require", "import", "process", "global", "__dirname", "__filename",
	"fs", "child_process", "eval", "Function", "setTimeout", "setInterval",
}

// ScriptExecutor evaluates task-js snippets in an isolated interpreter.
//
// Each execution gets a brand-new goja.Runtime whose only binding is a
// console.log/console.error shim; there is no ambient access to the host
// process, filesystem, network or timers because none of those exist inside
// the interpreter. A hard wall-clock timeout interrupts runaway scripts.
type ScriptExecutor struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewScriptExecutor creates a script executor with the given wall-clock limit.
func NewScriptExecutor(timeout time.Duration, logger *slog.Logger) *ScriptExecutor {
	return &ScriptExecutor{timeout: timeout, logger: logger}
}

// Execute scans the source against the denylist, then evaluates it.
// The program's completion value becomes Result; when the script completes
// with undefined, captured console output is returned instead.
func (e *ScriptExecutor) Execute(ctx context.Context, code string) ExecutionResult {
	start := time.Now()

	if tok := scanScript(code); tok != "" {
		return failure(fmt.Sprintf("use of %q is not allowed", tok), time.Since(start).Milliseconds())
	}

	vm := goja.New()
	var captured []string
	if err := bindConsole(vm, &captured, e.logger); err != nil {
		return failure("failed to prepare execution context", time.Since(start).Milliseconds())
	}

	// Interrupt on timeout or caller cancellation, whichever comes first.
	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	stop := context.AfterFunc(evalCtx, func() {
		vm.Interrupt("execution timed out")
	})
	defer stop()

	value, err := vm.RunString(code)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return failure(fmt.Sprintf("execution exceeded the %s limit", e.timeout), elapsed)
		}
		return failure(err.Error(), elapsed)
	}

	var result any
	switch {
	case value != nil && !goja.IsUndefined(value) && !goja.IsNull(value):
		result = value.Export()
	case len(captured) > 0:
		result = strings.Join(captured, "\n")
	}

	return ExecutionResult{Success: true, Result: result, ExecutionTime: elapsed}
}

// scanScript returns the first denylisted token found in the source, or "".
func scanScript(code string) string {
	for _, tok := range scriptDenylist {
		if strings.Contains(code, tok) {
			return tok
		}
	}
	return ""
}

// bindConsole installs a minimal console shim that records output instead of
// touching the host's stdio. This is the entire API surface a script sees.
func bindConsole(vm *goja.Runtime, captured *[]string, logger *slog.Logger) error {
	record := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		line := strings.Join(parts, " ")
		*captured = append(*captured, line)
		logger.Debug("sandbox console", "line", line)
		return goja.Undefined()
	}

	console := vm.NewObject()
	if err := console.Set("log", record); err != nil {
		return err
	}
	if err := console.Set("error", record); err != nil {
		return err
	}
	return vm.Set("console", console)
}
