// Package handler resolves stored handler references into invocables. A
// reference is parsed once into a tagged Ref and resolved through an explicit
// Registry; capability interfaces (Invokable, Queueable, WorkerAware) replace
// runtime type probing.
package handler
