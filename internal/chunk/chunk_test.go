package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore/internal/storage"
)

func TestChunkDocument_RejectsBinary(t *testing.T) {
	_, err := ChunkDocument("image.png", []byte{0x89, 0x50, 0x4e, 0x47, 0, 0, 0}, storage.DocText, Options{})
	require.Error(t, err)
	assert.IsType(t, ErrBinaryContent{}, err)
}

func TestChunkDocument_ProseSplitsOnParagraphs(t *testing.T) {
	text := strings.Repeat("word ", 50) + "\n\n" + strings.Repeat("other ", 50)
	chunks, err := ChunkDocument("notes.txt", []byte(text), storage.DocText, Options{ChunkSize: 20, ChunkOverlap: 2})
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Nil(t, c.Code)
	}
}

func TestChunkDocument_CodeTracksScopeMetadata(t *testing.T) {
	src := "package main\n\nfunc A() {\n\tprintln(\"a\")\n}\n\nfunc B() {\n\tprintln(\"b\")\n}\n"
	chunks, err := ChunkDocument("main.go", []byte(src), storage.DocCode, Options{ChunkSize: 200})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		require.NotNil(t, c.Code)
		assert.Equal(t, "go", c.Code.Language)
	}
}

func TestCodeChunkFile_NeverSplitsInsideStringLiteral(t *testing.T) {
	src := "func A() {\n\ts := \"func fake() {\"\n\t_ = s\n}\n\nfunc B() {}\n"
	blocks := CodeChunkFile("go", src, 1000, estimateTokens)
	require.Len(t, blocks, 2)
	assert.Contains(t, blocks[0].Text, "func fake() {")
}
