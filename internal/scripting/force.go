// Package scripting evaluates force laws written in Lua.
package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"go.uber.org/zap"

	"github.com/DangerosoDavo/verletecs/verlet"
)

// ForceFunction is the global a force script must define:
//
//	function force(x, y, z) return fx, fy, fz end
const ForceFunction = "force"

var ErrScriptClosed = errors.New("scripting: force script closed")

// ForceScript is a verlet.ForceLaw backed by a compiled Lua chunk. A gopher-lua
// VM is single-goroutine, so every evaluator borrows its own VM from a pool.
type ForceScript struct {
	name  string
	proto *lua.FunctionProto
	log   *zap.Logger

	mu     sync.Mutex
	idle   []*lua.LState
	limit  int
	closed bool
}

// LoadForceScript compiles the Lua file at path.
func LoadForceScript(path string, log *zap.Logger) (*ForceScript, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read force script: %w", err)
	}
	return CompileForceScript(filepath.Base(path), string(src), log)
}

// CompileForceScript compiles source once and checks that it defines force.
func CompileForceScript(name, source string, log *zap.Logger) (*ForceScript, error) {
	if log == nil {
		log = zap.NewNop()
	}
	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	s := &ForceScript{name: name, proto: proto, log: log, limit: runtime.GOMAXPROCS(0)}
	vm, err := s.newVM()
	if err != nil {
		return nil, err
	}
	s.idle = append(s.idle, vm)
	log.Debug("compiled force script", zap.String("script", name))
	return s, nil
}

func (s *ForceScript) newVM() (*lua.LState, error) {
	vm := lua.NewState()
	vm.Push(vm.NewFunctionFromProto(s.proto))
	if err := vm.PCall(0, lua.MultRet, nil); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load %s: %w", s.name, err)
	}
	if _, ok := vm.GetGlobal(ForceFunction).(*lua.LFunction); !ok {
		vm.Close()
		return nil, fmt.Errorf("script %s does not define function %s", s.name, ForceFunction)
	}
	return vm, nil
}

func (s *ForceScript) Name() string { return "lua:" + s.name }

// Evaluator borrows a VM. The returned release gives it back to the pool.
func (s *ForceScript) Evaluator() (verlet.ForceFunc, func(), error) {
	vm, err := s.acquire()
	if err != nil {
		return nil, nil, err
	}
	fn := vm.GetGlobal(ForceFunction)
	eval := func(pos mgl64.Vec3) (mgl64.Vec3, error) {
		if err := vm.CallByParam(lua.P{
			Fn:      fn,
			NRet:    3,
			Protect: true,
		}, lua.LNumber(pos[0]), lua.LNumber(pos[1]), lua.LNumber(pos[2])); err != nil {
			return mgl64.Vec3{}, fmt.Errorf("lua %s: %w", s.name, err)
		}
		var out mgl64.Vec3
		for i := 0; i < 3; i++ {
			n, ok := vm.Get(i - 3).(lua.LNumber)
			if !ok {
				vm.Pop(3)
				return mgl64.Vec3{}, fmt.Errorf("lua %s: component %d is %s, want number", s.name, i, vm.Get(i-3).Type())
			}
			out[i] = float64(n)
		}
		vm.Pop(3)
		return out, nil
	}
	return eval, func() { s.release(vm) }, nil
}

func (s *ForceScript) acquire() (*lua.LState, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrScriptClosed
	}
	if n := len(s.idle); n > 0 {
		vm := s.idle[n-1]
		s.idle = s.idle[:n-1]
		s.mu.Unlock()
		return vm, nil
	}
	s.mu.Unlock()
	return s.newVM()
}

func (s *ForceScript) release(vm *lua.LState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.idle) >= s.limit {
		vm.Close()
		return
	}
	s.idle = append(s.idle, vm)
}

// Idle reports how many VMs are pooled.
func (s *ForceScript) Idle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.idle)
}

// Close shuts down pooled VMs. Evaluators still in use close theirs on release.
func (s *ForceScript) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, vm := range s.idle {
		vm.Close()
	}
	s.idle = nil
	s.log.Debug("closed force script", zap.String("script", s.name))
}

var _ verlet.ForceLaw = (*ForceScript)(nil)
