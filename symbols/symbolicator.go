// Copyright The pensieve-go Authors
// SPDX-License-Identifier: Apache-2.0

package symbols // import "github.com/pensieve-profiler/pensieve-go/symbols"

// ResolvedFrame is one native frame after symbolication. An instruction
// pointer can expand into several resolved frames when it sits inside
// inlined call sites.
type ResolvedFrame struct {
	Function string
	File     string
	Lineno   int
}

// Symbolicator is the boundary to on-disk symbol and debug-info readers. The
// resolver hands it the path of the mapped file and the module-relative
// address and receives the frames for that address, innermost first and
// outermost (caller) last. Returning an empty slice means the address has no
// symbol information; the resolver then falls back to a raw-address frame.
//
// Implementations do not need to demangle: the resolver filters every
// returned function name through a demangler.
type Symbolicator interface {
	Symbolicate(path string, addr uint64) []ResolvedFrame
}

// SymbolicatorFunc adapts a plain function to the Symbolicator interface.
type SymbolicatorFunc func(path string, addr uint64) []ResolvedFrame

func (f SymbolicatorFunc) Symbolicate(path string, addr uint64) []ResolvedFrame {
	return f(path, addr)
}
