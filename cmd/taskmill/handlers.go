package main

import (
	"errors"
	"fmt"
	"time"

	"taskmill/internal/handler"
)

// registerBuiltinHandlers installs the handlers the CLI ships with. Programs
// embedding the worker register their own; these exist so an operator can
// exercise a queue end to end without writing code.
func registerBuiltinHandlers(registry *handler.Registry) {
	registry.RegisterFunc("noop", func(inv *handler.Invocation) (any, error) {
		return nil, nil
	})

	registry.RegisterFunc("echo", func(inv *handler.Invocation) (any, error) {
		args := handler.Args(inv.Args)
		line := args.String(0, "")
		fmt.Fprintln(inv.Out, line)
		return line, nil
	})

	registry.RegisterFunc("sleep", func(inv *handler.Invocation) (any, error) {
		args := handler.Args(inv.Args)
		d := args.Duration(0, time.Second)
		select {
		case <-inv.Ctx.Done():
			return nil, inv.Ctx.Err()
		case <-time.After(d):
			return d.String(), nil
		}
	})

	registry.RegisterFunc("fail", func(inv *handler.Invocation) (any, error) {
		args := handler.Args(inv.Args)
		msg := args.String(0, "intentional failure")
		return nil, errors.New(msg)
	})
}
