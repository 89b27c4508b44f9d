// Copyright The pensieve-go Authors
// SPDX-License-Identifier: Apache-2.0

// Package reader decodes pensieve capture streams into allocation events
// with deduplicated Python stacks and resolvable native stacks.
//
// A Reader consumes records from any byte source, replays the frame push
// and pop records into per-thread call stacks, and hands out one Allocation
// per allocation record. Stacks are interned in a trie so that an
// Allocation only carries a records.TraceIndex; WalkPythonStack and
// WalkNativeStack turn the compact indices back into frames on demand.
package reader // import "github.com/pensieve-profiler/pensieve-go/reader"

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/pensieve-profiler/pensieve-go/records"
	"github.com/pensieve-profiler/pensieve-go/symbols"
)

const sourceBufferSize = 64 * 1024

// Reader decodes one capture stream. It is not safe for concurrent use.
type Reader struct {
	src    io.ReadCloser
	buf    *bufio.Reader
	header records.Header
	// offset is the number of bytes consumed so far, for error context.
	offset int64

	tracker *stackTracker
	frames  *frameTable
	tree    *frameTree
	chain   *nativeChain
	symbols *symbols.Resolver

	// err latches the first protocol or read failure; once set, every further
	// NextAllocation call returns it unchanged.
	err    error
	closed bool

	scratch [records.AllocationRecordSize]byte
}

// Option configures a Reader during New.
type Option func(*Reader)

// WithResolver registers segment mappings with res instead of a resolver
// created internally. The caller keeps ownership and can share res with
// other consumers of the same capture.
func WithResolver(res *symbols.Resolver) Option {
	return func(r *Reader) { r.symbols = res }
}

// New decodes the capture header from src and returns a Reader positioned at
// the first record. It fails with records.ErrFormat if src is not a pensieve
// capture or its version is unsupported. The Reader takes ownership of src
// and closes it in Close.
func New(src io.ReadCloser, opts ...Option) (*Reader, error) {
	r := &Reader{
		src:     src,
		buf:     bufio.NewReaderSize(src, sourceBufferSize),
		tracker: newStackTracker(),
		frames:  newFrameTable(),
		tree:    newFrameTree(),
		chain:   &nativeChain{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.symbols == nil {
		res, err := symbols.NewResolver()
		if err != nil {
			return nil, err
		}
		r.symbols = res
	}
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	log.Debugf("Decoded capture header: version %d, native traces %v, command line %q",
		r.header.Version, r.header.NativeTraces, r.header.CommandLine)
	return r, nil
}

// Header returns the decoded capture header.
func (r *Reader) Header() records.Header {
	return r.header
}

// Symbols returns the resolver that accumulates the capture's segment
// mappings, for resolving native frames of the allocations decoded so far.
func (r *Reader) Symbols() *symbols.Resolver {
	return r.symbols
}

// IsOpen reports whether the underlying source has not been closed yet.
func (r *Reader) IsOpen() bool {
	return !r.closed
}

// Close releases the underlying source. It is idempotent. The decoded state
// stays usable: stack walks keep working after Close, while NextAllocation
// reports io.EOF.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.src.Close()
}

// NextAllocation decodes records until the next allocation and returns it.
// It returns io.EOF once the stream is exhausted, which for a live source
// also covers the source being closed mid-capture. Any other error is
// permanent: the stream state is unreliable past it and subsequent calls
// return the same error.
func (r *Reader) NextAllocation() (*records.Allocation, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.closed {
		return nil, io.EOF
	}
	for {
		tag, err := r.buf.ReadByte()
		if err != nil {
			return nil, r.finish(err)
		}
		r.offset++

		switch records.RecordType(tag) {
		case records.RecordTypeAllocation:
			alloc, err := r.parseAllocation()
			if err != nil {
				return nil, r.finish(err)
			}
			return alloc, nil
		case records.RecordTypeFrameIndex:
			err = r.parseFrameIndex()
		case records.RecordTypeFrame:
			err = r.parseFrame()
		case records.RecordTypeNativeTraceIndex:
			err = r.parseNativeFrame()
		case records.RecordTypeMemoryMapStart:
			r.symbols.ClearSegments()
		case records.RecordTypeSegmentHeader:
			err = r.parseSegmentHeader()
		case records.RecordTypeSegment:
			err = fmt.Errorf("%w: %s record outside a segment header at offset 0x%x",
				records.ErrProtocol, records.RecordTypeSegment, r.offset-1)
		default:
			err = fmt.Errorf("%w: invalid record type 0x%02x at offset 0x%x",
				records.ErrProtocol, tag, r.offset-1)
		}
		if err != nil {
			return nil, r.finish(err)
		}
	}
}

// finish normalizes a decode failure. Stream exhaustion in any form maps to
// io.EOF: the capture has no end-of-stream marker, the producer just stops
// writing, so running out of bytes mid-record is the regular way a capture
// ends. Protocol violations and real read errors latch into r.err.
func (r *Reader) finish(err error) error {
	switch {
	case errors.Is(err, records.ErrProtocol):
		r.err = err
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, fs.ErrClosed) || errors.Is(err, net.ErrClosed):
		return io.EOF
	default:
		r.err = fmt.Errorf("read failed at offset 0x%x: %w", r.offset, err)
	}
	return r.err
}

func (r *Reader) readHeader() error {
	magic, err := r.fixed(len(records.Magic))
	if err != nil {
		return fmt.Errorf("failed to read capture header: %w", err)
	}
	if string(magic) != records.Magic {
		return fmt.Errorf("%w: input does not look like a pensieve capture",
			records.ErrFormat)
	}

	// version u32, native traces u8, stats 16 bytes.
	buf, err := r.fixed(21)
	if err != nil {
		return fmt.Errorf("failed to read capture header: %w", err)
	}
	version := binary.LittleEndian.Uint32(buf[0:4])
	if version != records.CurrentVersion {
		return fmt.Errorf("%w: capture version %d, this reader supports version %d",
			records.ErrFormat, version, records.CurrentVersion)
	}
	r.header.Version = version
	r.header.NativeTraces = buf[4] != 0
	r.header.Stats = records.Stats{
		TotalAllocations: binary.LittleEndian.Uint64(buf[5:13]),
		TotalFrames:      binary.LittleEndian.Uint64(buf[13:21]),
	}

	cmdline, err := r.cstring()
	if err != nil {
		return fmt.Errorf("failed to read capture header: %w", err)
	}
	r.header.CommandLine = cmdline
	return nil
}

func (r *Reader) parseAllocation() (*records.Allocation, error) {
	buf, err := r.fixed(records.AllocationRecordSize)
	if err != nil {
		return nil, err
	}
	rec := records.AllocationRecord{
		TID:           binary.LittleEndian.Uint64(buf[0:8]),
		Address:       binary.LittleEndian.Uint64(buf[8:16]),
		Size:          binary.LittleEndian.Uint64(buf[16:24]),
		Allocator:     records.Allocator(buf[24]),
		Lineno:        int(binary.LittleEndian.Uint32(buf[25:29])),
		NativeFrameID: binary.LittleEndian.Uint64(buf[29:37]),
	}

	// A thread with no recorded frames keeps the empty-stack index 0.
	// Otherwise the top of its stack is swapped for the precise frame
	// carrying the allocation's line number; the stored stack is left as the
	// push records built it.
	index := records.TraceIndex(0)
	if stack := r.tracker.stack(rec.TID); len(stack) > 0 {
		top, err := r.frames.preciseFor(stack[len(stack)-1], rec.Lineno)
		if err != nil {
			return nil, err
		}
		index = r.tree.indexForWithTop(stack, top)
	}

	return &records.Allocation{
		AllocationRecord: rec,
		TraceIndex:       index,
		Generation:       r.symbols.CurrentGeneration(),
	}, nil
}

func (r *Reader) parseFrame() error {
	buf, err := r.fixed(records.FrameSeqEntrySize)
	if err != nil {
		return err
	}
	entry := records.FrameSeqEntry{
		TID:     binary.LittleEndian.Uint64(buf[0:8]),
		FrameID: records.FrameID(binary.LittleEndian.Uint64(buf[8:16])),
		Action:  records.FrameAction(buf[16]),
	}
	switch entry.Action {
	case records.FramePush:
		r.tracker.push(entry.TID, entry.FrameID)
		return nil
	case records.FramePop:
		return r.tracker.pop(entry.TID)
	default:
		return fmt.Errorf("%w: invalid frame action 0x%02x at offset 0x%x",
			records.ErrProtocol, uint8(entry.Action), r.offset-1)
	}
}

func (r *Reader) parseFrameIndex() error {
	buf, err := r.fixed(8)
	if err != nil {
		return err
	}
	id := records.FrameID(binary.LittleEndian.Uint64(buf))
	function, err := r.cstring()
	if err != nil {
		return err
	}
	file, err := r.cstring()
	if err != nil {
		return err
	}
	buf, err = r.fixed(4)
	if err != nil {
		return err
	}
	return r.frames.define(id, records.Frame{
		Function:     function,
		File:         file,
		CallerLineno: int(binary.LittleEndian.Uint32(buf)),
	})
}

func (r *Reader) parseNativeFrame() error {
	buf, err := r.fixed(records.UnresolvedNativeFrameSize)
	if err != nil {
		return err
	}
	r.chain.append(records.UnresolvedNativeFrame{
		IP:   binary.LittleEndian.Uint64(buf[0:8]),
		Next: binary.LittleEndian.Uint64(buf[8:16]),
	})
	return nil
}

func (r *Reader) parseSegmentHeader() error {
	path, err := r.cstring()
	if err != nil {
		return err
	}
	buf, err := r.fixed(16)
	if err != nil {
		return err
	}
	count := binary.LittleEndian.Uint64(buf[0:8])
	base := binary.LittleEndian.Uint64(buf[8:16])

	// The claimed count is untrusted input: each segment costs 17 stream
	// bytes, so a lying producer runs into EOF on its own. Only the
	// preallocation needs capping.
	segments := make([]records.Segment, 0, min(count, 1024))
	for i := uint64(0); i < count; i++ {
		tag, err := r.buf.ReadByte()
		if err != nil {
			return err
		}
		r.offset++
		if records.RecordType(tag) != records.RecordTypeSegment {
			return fmt.Errorf("%w: expected %s record, got 0x%02x at offset 0x%x",
				records.ErrProtocol, records.RecordTypeSegment, tag, r.offset-1)
		}
		buf, err := r.fixed(records.SegmentSize)
		if err != nil {
			return err
		}
		segments = append(segments, records.Segment{
			Vaddr: binary.LittleEndian.Uint64(buf[0:8]),
			Memsz: binary.LittleEndian.Uint64(buf[8:16]),
		})
	}
	r.symbols.AddSegments(path, base, segments)
	return nil
}

// fixed reads the next n bytes into the scratch buffer. The returned slice
// is only valid until the next read.
func (r *Reader) fixed(n int) ([]byte, error) {
	buf := r.scratch[:n]
	if _, err := io.ReadFull(r.buf, buf); err != nil {
		return nil, err
	}
	r.offset += int64(n)
	return buf, nil
}

// cstring reads a NUL-terminated string, not including the terminator.
func (r *Reader) cstring() (string, error) {
	b, err := r.buf.ReadBytes(0)
	if err != nil {
		return "", err
	}
	r.offset += int64(len(b))
	return string(b[:len(b)-1]), nil
}
