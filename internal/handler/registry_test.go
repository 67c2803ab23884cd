package handler_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"taskmill/internal/handler"
)

type countingJob struct {
	calls *int
}

func (j *countingJob) Invoke(inv *handler.Invocation) (any, error) {
	*j.calls++
	return "instance", nil
}

type ephemeralJob struct{}

func (ephemeralJob) Invoke(inv *handler.Invocation) (any, error) { return nil, nil }
func (ephemeralJob) AutoDeleteOnComplete() bool                  { return true }

type progressJob struct {
	out io.Writer
}

func (j *progressJob) SetTerminal(w io.Writer) { j.out = w }
func (j *progressJob) Invoke(inv *handler.Invocation) (any, error) {
	fmt.Fprint(j.out, "working")
	return nil, nil
}

type mailer struct{}

func (mailer) CallMethod(method string, inv *handler.Invocation) (any, error) {
	switch method {
	case "deliver":
		return "delivered to " + handler.Args(inv.Args).String(0, "nobody"), nil
	default:
		return nil, fmt.Errorf("%w: mailer has no method %q", handler.ErrUnresolvable, method)
	}
}

func mustResolve(t *testing.T, r *handler.Registry, ref string) *handler.Resolved {
	t.Helper()
	parsed, err := handler.ParseRef(ref)
	if err != nil {
		t.Fatalf("ParseRef(%q) failed: %v", ref, err)
	}
	resolved, err := r.Resolve(parsed)
	if err != nil {
		t.Fatalf("Resolve(%q) failed: %v", ref, err)
	}
	return resolved
}

func TestResolveNamePrefersTypeOverFunc(t *testing.T) {
	registry := handler.NewRegistry()
	calls := 0
	registry.RegisterFunc("job", func(inv *handler.Invocation) (any, error) {
		t.Fatal("function resolved although a type is registered under the same name")
		return nil, nil
	})
	registry.RegisterType("job", func() any { return &countingJob{calls: &calls} })

	resolved := mustResolve(t, registry, "job")
	got, err := resolved.Invoke(&handler.Invocation{Ctx: context.Background()})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if got != "instance" || calls != 1 {
		t.Fatalf("instance was not invoked: response=%v calls=%d", got, calls)
	}
}

func TestResolveUnknownNameIsUnresolvable(t *testing.T) {
	registry := handler.NewRegistry()
	parsed, err := handler.ParseRef("missing")
	if err != nil {
		t.Fatalf("ParseRef failed: %v", err)
	}
	if _, err := registry.Resolve(parsed); !errors.Is(err, handler.ErrUnresolvable) {
		t.Fatalf("expected ErrUnresolvable, got %v", err)
	}
}

func TestResolveInstanceMethod(t *testing.T) {
	registry := handler.NewRegistry()
	registry.RegisterType("Mailer", func() any { return mailer{} })

	resolved := mustResolve(t, registry, "Mailer@deliver")
	got, err := resolved.Invoke(&handler.Invocation{Ctx: context.Background(), Args: handler.Args{"ops"}})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if got != "delivered to ops" {
		t.Fatalf("unexpected response %v", got)
	}

	resolved = mustResolve(t, registry, "Mailer@archive")
	if _, err := resolved.Invoke(&handler.Invocation{Ctx: context.Background()}); !errors.Is(err, handler.ErrUnresolvable) {
		t.Fatalf("unknown method should surface as unresolvable, got %v", err)
	}
}

func TestResolveStaticMethod(t *testing.T) {
	registry := handler.NewRegistry()
	registry.RegisterStatic("Mailer", "verify", func(inv *handler.Invocation) (any, error) {
		return "verified", nil
	})

	resolved := mustResolve(t, registry, "Mailer::verify")
	got, err := resolved.Invoke(&handler.Invocation{Ctx: context.Background()})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if got != "verified" {
		t.Fatalf("unexpected response %v", got)
	}

	parsed, err := handler.ParseRef("Mailer::unknown")
	if err != nil {
		t.Fatalf("ParseRef failed: %v", err)
	}
	if _, err := registry.Resolve(parsed); !errors.Is(err, handler.ErrUnresolvable) {
		t.Fatalf("expected ErrUnresolvable, got %v", err)
	}
}

func TestAutoDeleteCapability(t *testing.T) {
	registry := handler.NewRegistry()
	registry.RegisterType("ephemeral", func() any { return ephemeralJob{} })
	registry.RegisterFunc("plain", func(inv *handler.Invocation) (any, error) { return nil, nil })

	resolved := mustResolve(t, registry, "ephemeral")
	value, declared := resolved.AutoDeleteOverride()
	if !declared || !value {
		t.Fatalf("AutoDeleteOverride = (%v, %v), want (true, true)", value, declared)
	}

	resolved = mustResolve(t, registry, "plain")
	if _, declared := resolved.AutoDeleteOverride(); declared {
		t.Fatal("plain function declared an auto-delete preference")
	}
}

func TestWorkerAwareReceivesTerminal(t *testing.T) {
	registry := handler.NewRegistry()
	registry.RegisterType("progress", func() any { return &progressJob{out: io.Discard} })

	var buf bytes.Buffer
	resolved := mustResolve(t, registry, "progress")
	if _, err := resolved.Invoke(&handler.Invocation{Ctx: context.Background(), Out: &buf}); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if buf.String() != "working" {
		t.Fatalf("terminal captured %q, want %q", buf.String(), "working")
	}
}

func TestClosuresRequireOptIn(t *testing.T) {
	registry := handler.NewRegistry()
	registry.RegisterFunc("greet", func(inv *handler.Invocation) (any, error) {
		args := handler.Args(inv.Args)
		return args.String(0, "?") + " " + args.String(1, "?"), nil
	})

	serialized, err := handler.SerializeClosure("greet", "hello")
	if err != nil {
		t.Fatalf("SerializeClosure failed: %v", err)
	}
	parsed, err := handler.ParseRef(serialized)
	if err != nil {
		t.Fatalf("ParseRef failed: %v", err)
	}

	if _, err := registry.Resolve(parsed); !errors.Is(err, handler.ErrClosuresDisabled) {
		t.Fatalf("expected ErrClosuresDisabled, got %v", err)
	}
	if _, err := registry.Resolve(parsed); !errors.Is(err, handler.ErrUnresolvable) {
		t.Fatal("ErrClosuresDisabled must classify as unresolvable")
	}

	registry.AllowClosures(true)
	resolved, err := registry.Resolve(parsed)
	if err != nil {
		t.Fatalf("Resolve failed after opt-in: %v", err)
	}
	got, err := resolved.Invoke(&handler.Invocation{Ctx: context.Background(), Args: handler.Args{"world"}})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("bound arguments not prepended: %v", got)
	}
}

func TestClosureTargetMustBeRegistered(t *testing.T) {
	registry := handler.NewRegistry()
	registry.AllowClosures(true)

	serialized, err := handler.SerializeClosure("vanished")
	if err != nil {
		t.Fatalf("SerializeClosure failed: %v", err)
	}
	parsed, err := handler.ParseRef(serialized)
	if err != nil {
		t.Fatalf("ParseRef failed: %v", err)
	}
	if _, err := registry.Resolve(parsed); !errors.Is(err, handler.ErrUnresolvable) {
		t.Fatalf("expected ErrUnresolvable, got %v", err)
	}
}
