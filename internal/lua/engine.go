// Package lua runs user scripts against the central engine. Scripts see a
// global `ble` table and react to engine events through callbacks.
package lua

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/ringchan"
)

// OutputRecord is one line printed by a script, or an error raised by one.
type OutputRecord struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "stdout" or "stderr"
}

// Error types
const (
	ErrorSyntax  = "syntax"
	ErrorRuntime = "runtime"
	ErrorAPI     = "api"
)

// LuaError represents detailed Lua execution errors
type LuaError struct {
	Type       string
	Message    string
	Line       int
	Source     string
	Underlying error
}

func (e *LuaError) Error() string {
	parts := []string{}
	if e.Source != "" {
		parts = append(parts, fmt.Sprintf("in %s", e.Source))
	}
	if e.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", e.Line))
	}

	prefix := "Lua error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("Lua %s error (%s)", e.Type, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *LuaError) Unwrap() error {
	return e.Underlying
}

// Is matches LuaErrors of the same Type.
func (e *LuaError) Is(target error) bool {
	var luaErr *LuaError
	if errors.As(target, &luaErr) {
		return e.Type == luaErr.Type
	}
	return false
}

// Engine owns one Lua state. Every access to the state goes through Do, which
// serializes script execution with event callbacks.
type Engine struct {
	mu     sync.Mutex
	state  *lua.State
	logger *logrus.Logger
	script string
	name   string

	outMu     sync.RWMutex
	output    *ringchan.Channel[OutputRecord]
	outClosed bool
}

// NewEngine creates an engine whose print output is kept in a ring of
// outputCapacity records; the oldest records are dropped when nobody drains it.
func NewEngine(outputCapacity int, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	e := &Engine{
		logger: logger,
		output: ringchan.New[OutputRecord](outputCapacity),
	}
	e.Reset()
	return e
}

// Do runs fn with exclusive access to the Lua state. It is a no-op after Close.
func (e *Engine) Do(fn func(L *lua.State)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return
	}
	fn(e.state)
}

// Output delivers captured print output.
func (e *Engine) Output() <-chan OutputRecord {
	return e.output.C()
}

// Stderr records an error line in the output stream.
func (e *Engine) Stderr(format string, args ...any) {
	e.emit(fmt.Sprintf(format, args...)+"\n", "stderr")
}

func (e *Engine) emit(content, source string) {
	e.outMu.RLock()
	defer e.outMu.RUnlock()
	if e.outClosed {
		return
	}
	if dropped := e.output.Push(OutputRecord{Content: content, Timestamp: time.Now(), Source: source}); dropped {
		e.logger.Debug("Lua output ring full, oldest record dropped")
	}
}

func (e *Engine) registerPrintCapture(L *lua.State) {
	L.PushGoFunction(func(L *lua.State) int {
		top := L.GetTop()
		parts := make([]string, 0, top)

		for i := 1; i <= top; i++ {
			switch {
			case L.IsNil(i):
				parts = append(parts, "nil")
			case L.IsBoolean(i):
				parts = append(parts, fmt.Sprintf("%t", L.ToBoolean(i)))
			case L.IsNumber(i):
				parts = append(parts, fmt.Sprintf("%v", L.ToNumber(i)))
			case L.IsString(i):
				parts = append(parts, L.ToString(i))
			default:
				L.GetGlobal("tostring")
				L.PushValue(i)
				L.Call(1, 1)
				parts = append(parts, L.ToString(-1))
				L.Pop(1)
			}
		}

		e.emit(strings.Join(parts, "\t")+"\n", "stdout")
		return 0
	})
	L.SetGlobal("print")
}

// SafeWrapGoFunction converts Go panics inside fn into Lua errors, so a
// faulty binding cannot take the process down.
func (e *Engine) SafeWrapGoFunction(name string, fn lua.LuaGoFunction) lua.LuaGoFunction {
	return func(L *lua.State) (n int) {
		defer func() {
			if r := recover(); r != nil {
				e.logger.WithField("function", name).Errorf("panic in Lua binding: %v\n%s", r, debug.Stack())
				L.RaiseError(fmt.Sprintf("%s: internal error: %v", name, r))
			}
		}()
		return fn(L)
	}
}

// parseLuaError turns "chunk:LINE: message" into a LuaError.
func parseLuaError(errType, source, msg string) *LuaError {
	line := 0
	message := msg
	parts := strings.SplitN(msg, ":", 3)
	if len(parts) == 3 {
		if parsed, err := fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &line); err == nil && parsed == 1 {
			message = strings.TrimSpace(parts[2])
		}
	}
	return &LuaError{Type: errType, Message: message, Line: line, Source: source}
}

// LoadScriptFile loads a Lua script from a file
func (e *Engine) LoadScriptFile(filename string) error {
	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read script %s: %w", filename, err)
	}
	return e.LoadScript(string(content), filename)
}

// LoadScript compiles a script without running it, reporting syntax errors.
func (e *Engine) LoadScript(script, name string) error {
	if strings.TrimSpace(script) == "" {
		return &LuaError{Type: ErrorAPI, Message: "empty script", Source: name}
	}

	var loadErr error
	e.Do(func(L *lua.State) {
		if status := L.LoadString(script); status != 0 {
			loadErr = parseLuaError(ErrorSyntax, name, L.ToString(-1))
		}
		L.Pop(1)
	})
	if loadErr != nil {
		e.Stderr("%v", loadErr)
		return loadErr
	}

	e.script, e.name = script, name
	return nil
}

// Execute runs the loaded script to completion.
func (e *Engine) Execute() error {
	if e.script == "" {
		return &LuaError{Type: ErrorAPI, Message: "no script loaded"}
	}

	var execErr error
	e.Do(func(L *lua.State) {
		if err := L.DoString(e.script); err != nil {
			execErr = &LuaError{Type: ErrorRuntime, Message: err.Error(), Source: e.name, Underlying: err}
			L.SetTop(0)
		}
	})
	if execErr != nil {
		e.Stderr("%v", execErr)
	}
	return execErr
}

// CallRef calls the function stored at a registry reference with the
// values pushed by args. Errors are reported to stderr and returned.
func (e *Engine) CallRef(ref int, name string, args func(L *lua.State) int) error {
	var callErr error
	e.Do(func(L *lua.State) {
		L.RawGeti(lua.LUA_REGISTRYINDEX, ref)
		n := 0
		if args != nil {
			n = args(L)
		}
		if err := L.Call(n, 0); err != nil {
			callErr = &LuaError{Type: ErrorRuntime, Message: err.Error(), Source: name, Underlying: err}
			L.SetTop(0)
		}
	})
	if callErr != nil {
		e.logger.WithError(callErr).WithField("callback", name).Warn("Lua callback failed")
		e.Stderr("%v", callErr)
	}
	return callErr
}

// Unref releases a registry reference.
func (e *Engine) Unref(ref int) {
	e.Do(func(L *lua.State) {
		L.Unref(lua.LUA_REGISTRYINDEX, ref)
	})
}

// Reset recreates the Lua state
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != nil {
		e.state.Close()
	}
	e.state = lua.NewState()
	e.state.OpenLibs()
	e.registerPrintCapture(e.state)
	e.script, e.name = "", ""
}

// Close releases the Lua state and ends the output stream.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return
	}
	e.state.Close()
	e.state = nil

	e.outMu.Lock()
	e.outClosed = true
	e.output.Close()
	e.outMu.Unlock()
}

// GetGlobalString reads a string global.
func (e *Engine) GetGlobalString(name string) (string, error) {
	var (
		result string
		err    error
	)
	e.Do(func(L *lua.State) {
		L.GetGlobal(name)
		defer L.Pop(1)
		if !L.IsString(-1) {
			err = fmt.Errorf("global variable %s is not a string", name)
			return
		}
		result = L.ToString(-1)
	})
	return result, err
}

// GetGlobalInteger reads a numeric global.
func (e *Engine) GetGlobalInteger(name string) (int, error) {
	var (
		result int
		err    error
	)
	e.Do(func(L *lua.State) {
		L.GetGlobal(name)
		defer L.Pop(1)
		if !L.IsNumber(-1) {
			err = fmt.Errorf("global variable %s is not a number", name)
			return
		}
		result = L.ToInteger(-1)
	})
	return result, err
}
