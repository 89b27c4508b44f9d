// Copyright The pensieve-go Authors
// SPDX-License-Identifier: Apache-2.0

package source // import "github.com/pensieve-profiler/pensieve-go/source"

import (
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic is the little-endian zstd frame magic 0xFD2FB528.
var zstdMagic = [4]byte{0x28, 0xb5, 0x2f, 0xfd}

// FileSource reads a capture file from disk. Files compressed with zstd are
// detected by their frame magic and decompressed transparently.
type FileSource struct {
	file   *os.File
	r      io.Reader
	dec    *zstd.Decoder
	closed bool
}

// Open opens the capture file at path, sniffing for zstd compression.
func Open(path string) (*FileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var magic [4]byte
	n, err := io.ReadFull(file, magic[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		file.Close()
		return nil, fmt.Errorf("failed to probe %s: %w", path, err)
	}
	if _, err = file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, err
	}

	s := &FileSource{file: file, r: file}
	if n == len(magic) && magic == zstdMagic {
		dec, err := zstd.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to open compressed capture %s: %w", path, err)
		}
		s.dec = dec
		s.r = dec
	}
	return s, nil
}

func (s *FileSource) Read(p []byte) (int, error) {
	if s.closed {
		return 0, fs.ErrClosed
	}
	return s.r.Read(p)
}

// Close releases the file and, if present, the decompressor. It is safe to
// call multiple times.
func (s *FileSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.dec != nil {
		s.dec.Close()
	}
	return s.file.Close()
}
