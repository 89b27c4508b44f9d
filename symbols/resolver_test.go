// Copyright The pensieve-go Authors
// SPDX-License-Identifier: Apache-2.0

package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pensieve-profiler/pensieve-go/records"
)

func newTestResolver(t *testing.T, opts ...Option) *Resolver {
	t.Helper()
	r, err := NewResolver(opts...)
	require.NoError(t, err)
	return r
}

func TestResolveWithoutSegments(t *testing.T) {
	r := newTestResolver(t)
	assert.Equal(t, records.Generation(0), r.CurrentGeneration())

	_, ok := r.Resolve(0x1000, 0)
	assert.False(t, ok)
}

func TestResolveFallbackFrame(t *testing.T) {
	r := newTestResolver(t)
	r.AddSegments("/usr/lib/libfoo.so", 0x400000, []records.Segment{
		{Vaddr: 0x1000, Memsz: 0x2000},
	})

	frames, ok := r.Resolve(0x401080, 0)
	require.True(t, ok)
	require.Len(t, frames, 1)
	assert.Equal(t, "0x401080", frames[0].Function)
	assert.Equal(t, "/usr/lib/libfoo.so", frames[0].File)
	assert.Zero(t, frames[0].Lineno)
}

func TestResolveSpanBoundaries(t *testing.T) {
	r := newTestResolver(t)
	r.AddSegments("/usr/lib/libfoo.so", 0x400000, []records.Segment{
		{Vaddr: 0x1000, Memsz: 0x1000},
		{Vaddr: 0x8000, Memsz: 0}, // empty mappings are ignored
	})

	_, ok := r.Resolve(0x400fff, 0)
	assert.False(t, ok, "below the first segment")
	_, ok = r.Resolve(0x401000, 0)
	assert.True(t, ok, "segment start is inclusive")
	_, ok = r.Resolve(0x401fff, 0)
	assert.True(t, ok, "last byte of the segment")
	_, ok = r.Resolve(0x402000, 0)
	assert.False(t, ok, "segment end is exclusive")
	_, ok = r.Resolve(0x408000, 0)
	assert.False(t, ok, "empty mapping")
}

func TestResolveSymbolicated(t *testing.T) {
	var gotPath string
	var gotAddr uint64
	symbolicate := SymbolicatorFunc(func(path string, addr uint64) []ResolvedFrame {
		gotPath = path
		gotAddr = addr
		return []ResolvedFrame{
			{Function: "_Z7inlinedv", File: "inlined.cc", Lineno: 12},
			{Function: "_Z5outerv", File: "outer.cc", Lineno: 90},
		}
	})

	r := newTestResolver(t, WithSymbolicator(symbolicate))
	r.AddSegments("/usr/lib/libfoo.so", 0x400000, []records.Segment{
		{Vaddr: 0, Memsz: 0x10000},
	})

	frames, ok := r.Resolve(0x400123, 0)
	require.True(t, ok)
	assert.Equal(t, "/usr/lib/libfoo.so", gotPath)
	assert.Equal(t, uint64(0x123), gotAddr, "addresses are handed over module-relative")

	require.Len(t, frames, 2)
	assert.Equal(t, "inlined()", frames[0].Function)
	assert.Equal(t, "inlined.cc", frames[0].File)
	assert.Equal(t, 12, frames[0].Lineno)
	assert.Equal(t, "outer()", frames[1].Function)
}

func TestResolveKeepsPlainNames(t *testing.T) {
	symbolicate := SymbolicatorFunc(func(string, uint64) []ResolvedFrame {
		return []ResolvedFrame{{Function: "plain_c_name", File: "x.c", Lineno: 1}}
	})

	r := newTestResolver(t, WithSymbolicator(symbolicate))
	r.AddSegments("/usr/lib/libfoo.so", 0, []records.Segment{{Vaddr: 0, Memsz: 0x1000}})

	frames, ok := r.Resolve(0x10, 0)
	require.True(t, ok)
	assert.Equal(t, "plain_c_name", frames[0].Function)
}

func TestResolveCachesSymbolication(t *testing.T) {
	calls := 0
	symbolicate := SymbolicatorFunc(func(string, uint64) []ResolvedFrame {
		calls++
		return []ResolvedFrame{{Function: "f", File: "f.c", Lineno: 1}}
	})

	r := newTestResolver(t, WithSymbolicator(symbolicate))
	r.AddSegments("/usr/lib/libfoo.so", 0, []records.Segment{{Vaddr: 0, Memsz: 0x1000}})

	first, ok := r.Resolve(0x10, 0)
	require.True(t, ok)
	second, ok := r.Resolve(0x10, 0)
	require.True(t, ok)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	// A different address is its own cache entry.
	_, ok = r.Resolve(0x20, 0)
	require.True(t, ok)
	assert.Equal(t, 2, calls)
}

func TestGenerationRetention(t *testing.T) {
	r := newTestResolver(t)
	r.AddSegments("/lib/liba.so", 0x1000, []records.Segment{{Vaddr: 0, Memsz: 0x1000}})

	r.ClearSegments()
	assert.Equal(t, records.Generation(1), r.CurrentGeneration())
	r.AddSegments("/lib/libb.so", 0x1000, []records.Segment{{Vaddr: 0, Memsz: 0x1000}})

	// The same address resolves per generation.
	frames, ok := r.Resolve(0x1100, 0)
	require.True(t, ok)
	assert.Equal(t, "/lib/liba.so", frames[0].File)

	frames, ok = r.Resolve(0x1100, 1)
	require.True(t, ok)
	assert.Equal(t, "/lib/libb.so", frames[0].File)

	// Generations that never existed do not resolve.
	_, ok = r.Resolve(0x1100, 7)
	assert.False(t, ok)
}

func TestGenerationEviction(t *testing.T) {
	r := newTestResolver(t, WithMaxGenerations(2))
	r.AddSegments("/lib/liba.so", 0x1000, []records.Segment{{Vaddr: 0, Memsz: 0x1000}})

	r.ClearSegments()
	r.AddSegments("/lib/libb.so", 0x1000, []records.Segment{{Vaddr: 0, Memsz: 0x1000}})
	r.ClearSegments()
	r.AddSegments("/lib/libc.so", 0x1000, []records.Segment{{Vaddr: 0, Memsz: 0x1000}})
	assert.Equal(t, records.Generation(2), r.CurrentGeneration())

	// Generation 0 fell off the retention window.
	_, ok := r.Resolve(0x1100, 0)
	assert.False(t, ok)

	frames, ok := r.Resolve(0x1100, 1)
	require.True(t, ok)
	assert.Equal(t, "/lib/libb.so", frames[0].File)

	frames, ok = r.Resolve(0x1100, 2)
	require.True(t, ok)
	assert.Equal(t, "/lib/libc.so", frames[0].File)
}

func TestResolveMultipleModules(t *testing.T) {
	r := newTestResolver(t)
	r.AddSegments("/lib/liba.so", 0x1000, []records.Segment{{Vaddr: 0, Memsz: 0x1000}})
	r.AddSegments("/lib/libb.so", 0x2000, []records.Segment{{Vaddr: 0, Memsz: 0x1000}})

	frames, ok := r.Resolve(0x1200, 0)
	require.True(t, ok)
	assert.Equal(t, "/lib/liba.so", frames[0].File)

	frames, ok = r.Resolve(0x2200, 0)
	require.True(t, ok)
	assert.Equal(t, "/lib/libb.so", frames[0].File)
}
