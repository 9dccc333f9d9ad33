// Package evaluator turns untrusted component source into live components.
//
// Every evaluation runs in its own goja runtime that exposes only an
// allow-list of bindings: React.createElement, the host primitives,
// StyleSheet, and a console routed to the logger. Network, filesystem,
// environment, timers and require are not reachable from evaluated code.
package evaluator

import (
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/vburojevic/hotswap/internal/domain"
)

const (
	// DefaultTimeout bounds a single evaluation or render
	DefaultTimeout = 2 * time.Second

	maxCallStackSize = 1024
)

// Options configures an Evaluator
type Options struct {
	Timeout time.Duration
	Logger  *zap.Logger
}

// Evaluator evaluates component source. It holds no per-screen state and is
// safe for concurrent use.
type Evaluator struct {
	timeout time.Duration
	log     *zap.Logger
}

// New creates an Evaluator
func New(opts Options) *Evaluator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Evaluator{timeout: opts.Timeout, log: opts.Logger}
}

// Module is the result of evaluating a source file
type Module struct {
	Default Component
	Named   map[string]Component // function-valued named exports
	Screens map[string]Component // entries of an exported `screens` object
}

// Component is re-exported for callers that only import this package
type Component = domain.Component

// sandbox is one goja runtime plus the lock that serializes access to it.
// All components of a module share their sandbox.
type sandbox struct {
	mu       sync.Mutex
	vm       *goja.Runtime
	screenID string
	timeout  time.Duration
}

// run executes fn with the interrupt budget armed and panics recovered
func (s *sandbox) run(fn func() (goja.Value, error)) (v goja.Value, err error) {
	timer := time.AfterFunc(s.timeout, func() {
		s.vm.Interrupt(ErrTimeout)
	})
	defer func() {
		timer.Stop()
		s.vm.ClearInterrupt()
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// EvaluateModule runs source as a CommonJS-style module and collects its
// component exports. The default export is resolved from module.exports.default,
// then module.exports itself, then the script's completion value.
func (e *Evaluator) EvaluateModule(screenID, source string) (*Module, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)
	if err := install(vm, screenID, e.log); err != nil {
		return nil, newEvaluationError(screenID, err, e.timeout)
	}

	module := vm.NewObject()
	exports := vm.NewObject()
	_ = module.Set("exports", exports)
	_ = vm.Set("module", module)
	_ = vm.Set("exports", exports)

	sb := &sandbox{vm: vm, screenID: screenID, timeout: e.timeout}
	completion, err := sb.run(func() (goja.Value, error) {
		return vm.RunScript(screenID, source)
	})
	if err != nil {
		return nil, newEvaluationError(screenID, err, e.timeout)
	}

	mod := &Module{
		Named:   make(map[string]Component),
		Screens: make(map[string]Component),
	}
	exported := module.Get("exports")
	if fn, ok := goja.AssertFunction(exported); ok {
		mod.Default = &jsComponent{sb: sb, fn: fn, name: screenID}
	}
	if obj, ok := exported.(*goja.Object); ok {
		for _, key := range obj.Keys() {
			val := obj.Get(key)
			if fn, ok := goja.AssertFunction(val); ok {
				c := &jsComponent{sb: sb, fn: fn, name: key}
				if key == "default" {
					mod.Default = c
				} else {
					mod.Named[key] = c
				}
				continue
			}
			if key == "screens" {
				collectScreens(sb, val, mod.Screens)
			}
		}
	}
	if mod.Default == nil {
		if fn, ok := goja.AssertFunction(completion); ok {
			mod.Default = &jsComponent{sb: sb, fn: fn, name: screenID}
		}
	}
	return mod, nil
}

func collectScreens(sb *sandbox, v goja.Value, into map[string]Component) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return
	}
	for _, key := range obj.Keys() {
		if fn, ok := goja.AssertFunction(obj.Get(key)); ok {
			into[key] = &jsComponent{sb: sb, fn: fn, name: key}
		}
	}
}

// Evaluate turns source into a single component. On failure it returns a stub
// component that renders the screen id and the error, together with the
// *EvaluationError, so callers always have something to render.
func (e *Evaluator) Evaluate(screenID, source string) (Component, error) {
	mod, err := e.EvaluateModule(screenID, source)
	if err != nil {
		e.log.Debug("evaluation failed", zap.String("screen_id", screenID), zap.Error(err))
		return Stub(screenID, err), err
	}
	if mod.Default == nil {
		err := &EvaluationError{ScreenID: screenID, Message: ErrNoComponent.Error(), Err: ErrNoComponent}
		return Stub(screenID, err), err
	}
	return mod.Default, nil
}
