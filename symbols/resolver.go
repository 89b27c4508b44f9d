// Copyright The pensieve-go Authors
// SPDX-License-Identifier: Apache-2.0

// Package symbols resolves native instruction pointers against the memory
// map a capture describes. The mapped-segment set is versioned by a
// generation counter that is bumped on every memory-map change, so an
// allocation recorded under an older map keeps resolving against the
// segments that were live when it happened.
package symbols // import "github.com/pensieve-profiler/pensieve-go/symbols"

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sort"

	lru "github.com/elastic/go-freelru"
	"github.com/ianlancetaylor/demangle"
	log "github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"

	"github.com/pensieve-profiler/pensieve-go/records"
)

// resolveCacheSize bounds the cache of symbolicated addresses. Symbolication
// through the opaque debug-info boundary is the expensive step; segment
// lookups are not cached.
const resolveCacheSize = 8192

// span is one mapped segment in absolute addresses, [start, end).
type span struct {
	start  uint64
	end    uint64
	module int32
}

// moduleInfo describes one mapped file within a generation.
type moduleInfo struct {
	path string
	base uint64
}

// generationTable is the segment set of one generation. Spans are kept
// sorted by descending start for sort.Search lookups.
type generationTable struct {
	spans   []span
	modules []moduleInfo
}

func (t *generationTable) lookup(ip uint64) (moduleInfo, bool) {
	idx := sort.Search(len(t.spans), func(i int) bool {
		return ip >= t.spans[i].start
	})
	if idx >= len(t.spans) || ip >= t.spans[idx].end {
		return moduleInfo{}, false
	}
	return t.modules[t.spans[idx].module], true
}

type resolveKey struct {
	ip  uint64
	gen records.Generation
}

// hashResolveKey is the freelru key hasher.
func hashResolveKey(k resolveKey) uint32 {
	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[:8], k.ip)
	binary.LittleEndian.PutUint32(buf[8:], uint32(k.gen))
	return uint32(xxh3.Hash(buf[:]))
}

// Resolver holds the per-generation segment sets and resolves instruction
// pointers recorded at any retained generation. It is not safe for
// concurrent use; every decoder owns its own Resolver.
type Resolver struct {
	// gens[i] is the table of generation baseGen+i. A fresh Resolver starts
	// with the empty table of generation 0.
	gens    []*generationTable
	baseGen records.Generation

	// maxGens caps how many generations are retained, 0 meaning all of
	// them. When the cap is exceeded the oldest table is dropped and ips
	// recorded under it no longer resolve.
	maxGens int

	symbolicator Symbolicator
	cache        *lru.LRU[resolveKey, []ResolvedFrame]
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSymbolicator installs the debug-info boundary used for addresses that
// fall inside a known segment. Without one, every covered address resolves
// to a raw-address fallback frame.
func WithSymbolicator(s Symbolicator) Option {
	return func(r *Resolver) { r.symbolicator = s }
}

// WithMaxGenerations keeps at most n generations of segment sets, evicting
// the oldest. n <= 0 retains everything.
func WithMaxGenerations(n int) Option {
	return func(r *Resolver) { r.maxGens = n }
}

// NewResolver returns a Resolver at generation 0 with an empty segment set.
func NewResolver(opts ...Option) (*Resolver, error) {
	cache, err := lru.New[resolveKey, []ResolvedFrame](resolveCacheSize, hashResolveKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolve cache: %w", err)
	}
	r := &Resolver{
		gens:  []*generationTable{{}},
		cache: cache,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// CurrentGeneration returns the generation new segment registrations and
// allocations are attributed to.
func (r *Resolver) CurrentGeneration() records.Generation {
	return r.baseGen + records.Generation(len(r.gens)-1)
}

// ClearSegments starts a new generation with an empty segment set. The
// previous sets stay queryable through Resolve unless evicted by the
// retention cap.
func (r *Resolver) ClearSegments() {
	r.gens = append(r.gens, &generationTable{})
	if r.maxGens > 0 && len(r.gens) > r.maxGens {
		drop := len(r.gens) - r.maxGens
		r.gens = slices.Clone(r.gens[drop:])
		r.baseGen += records.Generation(drop)
		log.Debugf("Evicted %d segment generation(s), oldest retained is %d", drop, r.baseGen)
	}
	log.Debugf("Memory map changed, segment generation now %d", r.CurrentGeneration())
}

// AddSegments registers the segments of one mapped file under the current
// generation. Segment addresses are relative to base.
func (r *Resolver) AddSegments(path string, base uint64, segs []records.Segment) {
	t := r.gens[len(r.gens)-1]
	mod := int32(len(t.modules))
	t.modules = append(t.modules, moduleInfo{path: path, base: base})
	for _, seg := range segs {
		if seg.Memsz == 0 {
			continue
		}
		t.spans = append(t.spans, span{
			start:  base + seg.Vaddr,
			end:    base + seg.Vaddr + seg.Memsz,
			module: mod,
		})
	}
	sort.Slice(t.spans, func(i, j int) bool {
		return t.spans[i].start > t.spans[j].start
	})
	log.Debugf("Registered %d segment(s) of %s at 0x%x in generation %d",
		len(segs), path, base, r.CurrentGeneration())
}

// Resolve maps ip to its frames using the segment set that was live at gen.
// It returns false when no retained segment of that generation covers ip.
// A covered ip always yields at least one frame: addresses without symbol
// information come back as a raw-address frame naming the mapped file.
func (r *Resolver) Resolve(ip uint64, gen records.Generation) ([]ResolvedFrame, bool) {
	// The generation is validated before the cache, so stale entries of an
	// evicted generation can only age out, never surface.
	if gen < r.baseGen || gen > r.CurrentGeneration() {
		log.Debugf("No retained segment set for generation %d (have %d..%d)",
			gen, r.baseGen, r.CurrentGeneration())
		return nil, false
	}

	key := resolveKey{ip: ip, gen: gen}
	if frames, ok := r.cache.Get(key); ok {
		return frames, true
	}

	mod, ok := r.gens[gen-r.baseGen].lookup(ip)
	if !ok {
		return nil, false
	}

	var frames []ResolvedFrame
	if r.symbolicator != nil {
		frames = r.symbolicator.Symbolicate(mod.path, ip-mod.base)
		for i := range frames {
			frames[i].Function = demangle.Filter(frames[i].Function)
		}
	}
	if len(frames) == 0 {
		frames = []ResolvedFrame{{
			Function: fmt.Sprintf("0x%x", ip),
			File:     mod.path,
		}}
	}
	r.cache.Add(key, frames)
	return frames, true
}
