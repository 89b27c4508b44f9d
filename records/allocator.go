// Copyright The pensieve-go Authors
// SPDX-License-Identifier: Apache-2.0

package records // import "github.com/pensieve-profiler/pensieve-go/records"

// Allocator identifies the hooked allocator function that produced an
// allocation record.
type Allocator uint8

const (
	AllocatorMalloc Allocator = iota + 1
	AllocatorFree
	AllocatorCalloc
	AllocatorRealloc
	AllocatorPosixMemalign
	AllocatorMemalign
	AllocatorValloc
	AllocatorPvalloc
	AllocatorMmap
	AllocatorMunmap
)

var allocatorNames = [...]string{
	AllocatorMalloc:        "malloc",
	AllocatorFree:          "free",
	AllocatorCalloc:        "calloc",
	AllocatorRealloc:       "realloc",
	AllocatorPosixMemalign: "posix_memalign",
	AllocatorMemalign:      "memalign",
	AllocatorValloc:        "valloc",
	AllocatorPvalloc:       "pvalloc",
	AllocatorMmap:          "mmap",
	AllocatorMunmap:        "munmap",
}

func (a Allocator) String() string {
	if int(a) < len(allocatorNames) && allocatorNames[a] != "" {
		return allocatorNames[a]
	}
	return "unknown"
}

// IsDeallocation reports whether the record releases memory instead of
// requesting it.
func (a Allocator) IsDeallocation() bool {
	return a == AllocatorFree || a == AllocatorMunmap
}
