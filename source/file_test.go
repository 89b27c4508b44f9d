// Copyright The pensieve-go Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCaptureFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.bin")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestOpenPlainFile(t *testing.T) {
	content := []byte("PENSIEVE and some record bytes")
	src, err := Open(writeCaptureFile(t, content))
	require.NoError(t, err)
	defer src.Close()

	got, err := io.ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestOpenCompressedFile(t *testing.T) {
	content := bytes.Repeat([]byte("PENSIEVE record payload "), 100)

	var compressed bytes.Buffer
	enc, err := zstd.NewWriter(&compressed)
	require.NoError(t, err)
	_, err = enc.Write(content)
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	src, err := Open(writeCaptureFile(t, compressed.Bytes()))
	require.NoError(t, err)
	defer src.Close()

	got, err := io.ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestOpenShortFile(t *testing.T) {
	// Shorter than the compression probe.
	content := []byte("PE")
	src, err := Open(writeCaptureFile(t, content))
	require.NoError(t, err)
	defer src.Close()

	got, err := io.ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "does-not-exist"))
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFileSourceClose(t *testing.T) {
	src, err := Open(writeCaptureFile(t, []byte("payload")))
	require.NoError(t, err)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())

	var buf [8]byte
	_, err = src.Read(buf[:])
	require.ErrorIs(t, err, fs.ErrClosed)
}
