package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrUnresolvable marks a handler reference that could not be turned into an
// invocable. Distinct from a handler that resolved but failed during
// execution; callers branch on it with errors.Is.
var ErrUnresolvable = errors.New("unresolvable handler")

// ErrClosuresDisabled is returned for serialized closure references when the
// registry has not opted in. It resolves as unresolvable.
var ErrClosuresDisabled = fmt.Errorf("%w: serialized closures are disabled", ErrUnresolvable)

// Invocation carries everything a handler receives: the caller context, the
// stored arguments, and the worker's terminal handle.
type Invocation struct {
	Ctx  context.Context
	Args Args
	Out  io.Writer
}

// Func is a directly registered handler function.
type Func func(inv *Invocation) (any, error)

// Invokable instances are callable with the stored arguments. Types
// registered by bare name must implement it.
type Invokable interface {
	Invoke(inv *Invocation) (any, error)
}

// Queueable instances declare their own auto-delete preference, overriding
// the task-level flag.
type Queueable interface {
	AutoDeleteOnComplete() bool
}

// WorkerAware instances want the worker's terminal handle injected before
// invocation, e.g. to emit progress while running.
type WorkerAware interface {
	SetTerminal(w io.Writer)
}

// MethodInvoker dispatches "Type@method" references. Implementations switch
// on the method name and return ErrUnresolvable (wrapped) for unknown ones.
type MethodInvoker interface {
	CallMethod(method string, inv *Invocation) (any, error)
}

// Registry maps handler references to registered functions, type
// constructors, and standalone methods. One registry is built by the process
// entry point and shared by every worker; there is no global instance.
type Registry struct {
	mu            sync.RWMutex
	funcs         map[string]Func
	types         map[string]func() any
	statics       map[string]Func
	allowClosures bool
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		funcs:   make(map[string]Func),
		types:   make(map[string]func() any),
		statics: make(map[string]Func),
	}
}

// RegisterFunc binds a bare handler name to a function.
func (r *Registry) RegisterFunc(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// RegisterType binds a type name to a constructor. Instances resolve bare
// references when Invokable and "Type@method" references when MethodInvoker.
func (r *Registry) RegisterType(name string, ctor func() any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[name] = ctor
}

// RegisterStatic binds a "Type::method" reference to a function that needs no
// instance.
func (r *Registry) RegisterStatic(typ, method string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statics[typ+"::"+method] = fn
}

// AllowClosures opts in to serialized closure references.
func (r *Registry) AllowClosures(allow bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allowClosures = allow
}

// Resolved is an invocable produced from a handler reference, tagged with the
// capabilities the resolved instance declared.
type Resolved struct {
	call       Func
	autoDelete *bool
	terminal   func(io.Writer)
}

// Invoke injects the terminal handle when the handler asked for one, then
// calls it with the stored arguments.
func (res *Resolved) Invoke(inv *Invocation) (any, error) {
	if res.terminal != nil && inv.Out != nil {
		res.terminal(inv.Out)
	}
	return res.call(inv)
}

// AutoDeleteOverride reports the Queueable preference: the second return is
// false when the handler declared none.
func (res *Resolved) AutoDeleteOverride() (value, declared bool) {
	if res.autoDelete == nil {
		return false, false
	}
	return *res.autoDelete, true
}

// Resolve turns a parsed reference into an invocable. Resolution order for a
// bare name: registered type first, registered function second.
func (r *Registry) Resolve(ref Ref) (*Resolved, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch ref.Kind {
	case KindName:
		if ctor, ok := r.types[ref.Name]; ok {
			inst := ctor()
			invokable, ok := inst.(Invokable)
			if !ok {
				return nil, fmt.Errorf("%w: type %q is not invokable", ErrUnresolvable, ref.Name)
			}
			res := &Resolved{call: invokable.Invoke}
			applyCapabilities(res, inst)
			return res, nil
		}
		if fn, ok := r.funcs[ref.Name]; ok {
			return &Resolved{call: fn}, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnresolvable, ref.Name)

	case KindInstanceMethod:
		ctor, ok := r.types[ref.Type]
		if !ok {
			return nil, fmt.Errorf("%w: unknown type %q", ErrUnresolvable, ref.Type)
		}
		inst := ctor()
		invoker, ok := inst.(MethodInvoker)
		if !ok {
			return nil, fmt.Errorf("%w: type %q has no method dispatch", ErrUnresolvable, ref.Type)
		}
		res := &Resolved{call: func(inv *Invocation) (any, error) {
			return invoker.CallMethod(ref.Method, inv)
		}}
		applyCapabilities(res, inst)
		return res, nil

	case KindStaticMethod:
		if fn, ok := r.statics[ref.Type+"::"+ref.Method]; ok {
			return &Resolved{call: fn}, nil
		}
		return nil, fmt.Errorf("%w: %s::%s", ErrUnresolvable, ref.Type, ref.Method)

	case KindClosure:
		if !r.allowClosures {
			return nil, ErrClosuresDisabled
		}
		return r.resolveClosure(ref.Closure)

	default:
		return nil, fmt.Errorf("%w: unknown reference kind", ErrUnresolvable)
	}
}

func applyCapabilities(res *Resolved, inst any) {
	if queueable, ok := inst.(Queueable); ok {
		pref := queueable.AutoDeleteOnComplete()
		res.autoDelete = &pref
	}
	if aware, ok := inst.(WorkerAware); ok {
		res.terminal = aware.SetTerminal
	}
}

// closureEnvelope is the serialized form of a closure reference: a registered
// function name plus bound arguments prepended to the stored ones.
type closureEnvelope struct {
	Name  string
	Bound []any
}

func init() {
	gob.Register([]any(nil))
	gob.Register(map[string]any(nil))
}

// SerializeClosure builds a closure handler string. The named function must
// be registered on the resolving registry; bound arguments are delivered
// ahead of the task's stored arguments.
func SerializeClosure(name string, bound ...any) (string, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(closureEnvelope{Name: name, Bound: bound}); err != nil {
		return "", fmt.Errorf("encode closure: %w", err)
	}
	return closurePrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (r *Registry) resolveClosure(payload []byte) (*Resolved, error) {
	var envelope closureEnvelope
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: corrupt closure payload: %v", ErrUnresolvable, err)
	}
	fn, ok := r.funcs[envelope.Name]
	if !ok {
		return nil, fmt.Errorf("%w: closure target %q", ErrUnresolvable, envelope.Name)
	}
	bound := envelope.Bound
	return &Resolved{call: func(inv *Invocation) (any, error) {
		merged := *inv
		merged.Args = append(append(Args{}, bound...), inv.Args...)
		return fn(&merged)
	}}, nil
}
