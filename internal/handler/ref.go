package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Kind tags the syntactic form of a handler reference.
type Kind uint8

const (
	// KindName is a bare identifier, resolved against registered types first
	// and registered functions second.
	KindName Kind = iota + 1
	// KindInstanceMethod is "Type@method": construct the registered type and
	// call the named method on the instance.
	KindInstanceMethod
	// KindStaticMethod is "Type::method": call a registered standalone method
	// without constructing anything.
	KindStaticMethod
	// KindClosure is an opaque serialized closure payload. Disabled unless a
	// registry opts in.
	KindClosure
)

func (k Kind) String() string {
	switch k {
	case KindName:
		return "name"
	case KindInstanceMethod:
		return "instance-method"
	case KindStaticMethod:
		return "static-method"
	case KindClosure:
		return "closure"
	default:
		return "unknown"
	}
}

// closurePrefix marks a serialized closure payload in a stored handler string.
const closurePrefix = "closure:"

// Ref is the normalized form of a stored handler string. Parsing happens once
// at enqueue time; execution decodes the tag with a single exhaustive switch.
type Ref struct {
	Kind    Kind
	Name    string // bare name for KindName
	Type    string // receiver type for method kinds
	Method  string // method name for method kinds
	Closure []byte // gob payload for KindClosure
}

// ParseRef normalizes a handler string into a tagged reference.
func ParseRef(value string) (Ref, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Ref{}, errors.New("handler reference is empty")
	}

	if payload, ok := strings.CutPrefix(trimmed, closurePrefix); ok {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return Ref{}, fmt.Errorf("decode closure payload: %w", err)
		}
		return Ref{Kind: KindClosure, Closure: decoded}, nil
	}

	if typ, method, ok := strings.Cut(trimmed, "@"); ok {
		if typ == "" || method == "" || strings.Contains(method, "@") {
			return Ref{}, fmt.Errorf("malformed instance method reference %q", value)
		}
		return Ref{Kind: KindInstanceMethod, Type: typ, Method: method}, nil
	}

	if typ, method, ok := strings.Cut(trimmed, "::"); ok {
		if typ == "" || method == "" || strings.Contains(method, "::") {
			return Ref{}, fmt.Errorf("malformed static method reference %q", value)
		}
		return Ref{Kind: KindStaticMethod, Type: typ, Method: method}, nil
	}

	return Ref{Kind: KindName, Name: trimmed}, nil
}

// String renders the reference back into its stored form.
func (r Ref) String() string {
	switch r.Kind {
	case KindName:
		return r.Name
	case KindInstanceMethod:
		return r.Type + "@" + r.Method
	case KindStaticMethod:
		return r.Type + "::" + r.Method
	case KindClosure:
		return closurePrefix + base64.StdEncoding.EncodeToString(r.Closure)
	default:
		return ""
	}
}
