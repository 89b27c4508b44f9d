// Copyright The pensieve-go Authors
// SPDX-License-Identifier: Apache-2.0

// Package records defines the on-disk record types of the pensieve capture
// format, shared between the stream decoder and its consumers.
//
// All integers in the capture are little-endian and fixed width, strings are
// NUL-terminated. The layout of every record is documented next to its type
// below; the size constants give the length of the fixed part of each payload.
package records // import "github.com/pensieve-profiler/pensieve-go/records"

import "errors"

// Magic identifies a capture produced by the pensieve instrumentation layer.
// It is the first 8 bytes of every capture.
const Magic = "PENSIEVE"

// CurrentVersion is the only header version this decoder understands.
const CurrentVersion uint32 = 1

// ErrFormat reports a capture whose header does not match Magic or
// CurrentVersion. It is raised at decoder construction, before any record is
// read, and means no part of the stream is usable.
var ErrFormat = errors.New("unsupported capture format")

// ErrProtocol reports a corrupted or incompatible record stream: an unknown
// record type, a duplicate frame id, or a pop on an empty stack. Decoding must
// not continue past it.
var ErrProtocol = errors.New("protocol violation")

// RecordType is the one-byte tag that starts every record in the stream.
type RecordType uint8

const (
	// RecordTypeUninitialized is never valid in a capture; a zero tag most
	// commonly means the producer crashed mid-write.
	RecordTypeUninitialized RecordType = iota
	// RecordTypeAllocation carries one captured allocator call.
	RecordTypeAllocation
	// RecordTypeFrameIndex defines the content of a frame id.
	RecordTypeFrameIndex
	// RecordTypeFrame pushes or pops a frame id on a thread's stack.
	RecordTypeFrame
	// RecordTypeNativeTraceIndex appends one entry to the native frame chain.
	RecordTypeNativeTraceIndex
	// RecordTypeMemoryMapStart announces that the process memory map changed
	// and a fresh set of segments follows.
	RecordTypeMemoryMapStart
	// RecordTypeSegmentHeader starts the segment list of one mapped file.
	RecordTypeSegmentHeader
	// RecordTypeSegment is a sub-record of RecordTypeSegmentHeader and is
	// only valid while one is being decoded.
	RecordTypeSegment
)

func (t RecordType) String() string {
	switch t {
	case RecordTypeUninitialized:
		return "uninitialized"
	case RecordTypeAllocation:
		return "allocation"
	case RecordTypeFrameIndex:
		return "frame_index"
	case RecordTypeFrame:
		return "frame"
	case RecordTypeNativeTraceIndex:
		return "native_trace_index"
	case RecordTypeMemoryMapStart:
		return "memory_map_start"
	case RecordTypeSegmentHeader:
		return "segment_header"
	case RecordTypeSegment:
		return "segment"
	default:
		return "unknown"
	}
}

// FrameID identifies a frame definition. Ids are assigned by the producer,
// except for the synthesized precise-line frames the decoder mints in the
// SynthesizedFrameID namespace.
type FrameID uint64

// SynthesizedFrameID is the first frame id of the namespace reserved for
// decoder-synthesized frames. Producer-assigned ids must stay below it; a
// capture that defines an id in this namespace is rejected as a protocol
// violation.
const SynthesizedFrameID FrameID = 1 << 63

// TraceIndex addresses a node in the stack deduplication tree. Index 0 is the
// reserved empty-stack sentinel and never a real node.
type TraceIndex uint32

// Generation counts memory-map epochs of the symbol resolver. It is bumped
// every time the capture announces a new memory map, and allocations snapshot
// the generation that was live when they were recorded.
type Generation uint32

// Stats is the fixed 16-byte statistics blob of the header: two u64 totals
// the producer wrote at shutdown.
type Stats struct {
	// TotalAllocations is the number of allocation records in the capture.
	TotalAllocations uint64
	// TotalFrames is the number of frame push/pop records in the capture.
	TotalFrames uint64
}

// Header is the capture preamble: Magic, version u32, native-traces flag u8,
// Stats, then the NUL-terminated command line. It is decoded once at
// construction and immutable afterwards.
type Header struct {
	// Version is the format version found in the capture. Always
	// CurrentVersion for a successfully constructed decoder.
	Version uint32
	// NativeTraces reports whether the producer captured native stacks in
	// addition to Python ones.
	NativeTraces bool
	// Stats holds the producer-side totals.
	Stats Stats
	// CommandLine is the command line of the traced process.
	CommandLine string
}

// Frame is the content of one Python frame. CallerLineno is the line in the
// calling frame at which this frame was entered; Lineno is the line inside
// this frame at which an allocation happened and starts out as 0 until the
// decoder synthesizes a precise frame for an allocation. Two frames are the
// same frame exactly when all four fields match, which makes Frame usable as
// a content-addressed map key.
type Frame struct {
	Function     string
	File         string
	CallerLineno int
	Lineno       int
}

// FrameAction discriminates push from pop in a frame record.
type FrameAction uint8

const (
	FramePush FrameAction = iota
	FramePop
)

func (a FrameAction) String() string {
	switch a {
	case FramePush:
		return "push"
	case FramePop:
		return "pop"
	default:
		return "invalid"
	}
}

// FrameSeqEntry is the payload of a frame record:
// tid u64, frame id u64, action u8.
type FrameSeqEntry struct {
	TID     uint64
	FrameID FrameID
	Action  FrameAction
}

// FrameSeqEntrySize is the wire size of FrameSeqEntry.
const FrameSeqEntrySize = 17

// AllocationRecord is the payload of an allocation record:
// tid u64, address u64, size u64, allocator u8, lineno u32, native frame id u64.
//
// The decoder only interprets TID and Lineno to reconstruct the Python stack;
// the remaining fields are carried through for the consumer.
type AllocationRecord struct {
	// TID is the id of the thread that performed the allocation.
	TID uint64
	// Address is the address returned by (or passed to) the allocator.
	Address uint64
	// Size is the requested size in bytes. Zero for deallocations.
	Size uint64
	// Allocator is the hooked allocator function.
	Allocator Allocator
	// Lineno is the line executing in the deepest Python frame when the
	// allocation happened.
	Lineno int
	// NativeFrameID is the 1-based index into the native frame chain, 0 when
	// no native stack was captured for this allocation.
	NativeFrameID uint64
}

// AllocationRecordSize is the wire size of AllocationRecord.
const AllocationRecordSize = 37

// UnresolvedNativeFrame is the payload of a native trace index record:
// ip u64, next u64. Entries form singly-linked chains through Next, which
// holds the 1-based index of the caller's entry; 0 terminates the chain.
type UnresolvedNativeFrame struct {
	IP   uint64
	Next uint64
}

// UnresolvedNativeFrameSize is the wire size of UnresolvedNativeFrame.
const UnresolvedNativeFrameSize = 16

// Segment is the payload of a segment sub-record: vaddr u64, memsz u64.
// Vaddr is relative to the base address announced in the surrounding segment
// header record.
type Segment struct {
	Vaddr uint64
	Memsz uint64
}

// SegmentSize is the wire size of Segment.
const SegmentSize = 16

// Allocation is the decoder output: the raw record plus the deduplicated
// Python stack index and the symbol-resolver generation that was live when
// the allocation was recorded. Values are produced fresh per decode call and
// owned by the caller.
type Allocation struct {
	AllocationRecord
	// TraceIndex identifies this allocation's Python stack in the dedup
	// tree; 0 means the thread had no recorded stack.
	TraceIndex TraceIndex
	// Generation selects the segment set to use when resolving
	// NativeFrameID, even after later memory-map changes.
	Generation Generation
}
