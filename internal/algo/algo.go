// Package algo maps DAG algorithm names to the numeric codes used in session state.
package algo

import "strings"

// Code identifies a DAG algorithm
type Code int

const (
	// Unset means no epoch message has been applied yet
	Unset Code = -1

	Ethash  Code = 0
	Etchash Code = 1
	Ubqhash Code = 2
)

// Baseline is assumed when an epoch message carries no algorithm name
const Baseline = Ethash

var names = map[Code]string{
	Ethash:  "ethash",
	Etchash: "etchash",
	Ubqhash: "ubqhash",
}

var codes = func() map[string]Code {
	m := make(map[string]Code, len(names))
	for code, name := range names {
		m[name] = code
	}
	return m
}()

// Resolver looks up an algorithm code by name
type Resolver interface {
	Resolve(name string) (Code, bool)
}

// Table is the built-in algorithm table
type Table struct{}

// Resolve returns the code for name. Names are matched case-insensitively.
func (Table) Resolve(name string) (Code, bool) {
	code, ok := codes[strings.ToLower(name)]
	return code, ok
}

// ResolverFunc adapts a plain function to Resolver
type ResolverFunc func(name string) (Code, bool)

func (f ResolverFunc) Resolve(name string) (Code, bool) {
	return f(name)
}

func (c Code) String() string {
	if c == Unset {
		return "unset"
	}
	if name, ok := names[c]; ok {
		return name
	}
	return "unknown"
}
