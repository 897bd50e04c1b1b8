package images

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough of a PNG for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestEncodePNG(t *testing.T) {
	got, err := Encode(bytes.NewReader(pngHeader), "dot.png")
	require.NoError(t, err)

	prefix := "data:image/png;base64,"
	require.True(t, strings.HasPrefix(got, prefix), got)
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(got, prefix))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, raw)
}

func TestEncodeRejects(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"plain text", []byte("just some words"), ErrNotImage},
		{"empty", nil, ErrNotImage},
		{"too large", append(append([]byte{}, pngHeader...), make([]byte, MaxFileSize)...), ErrImageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(bytes.NewReader(tt.data), tt.name)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEncodeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pic.gif")
	require.NoError(t, os.WriteFile(path, []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"), 0o644))

	got, err := EncodeFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "data:image/gif;base64,"))

	_, err = EncodeFile(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestEstimateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, append(append([]byte{}, pngHeader...), make([]byte, 300)...), 0o644))

	est, err := EstimateFile(path)
	require.NoError(t, err)
	encoded, err := EncodeFile(path)
	require.NoError(t, err)
	assert.InDelta(t, len(encoded), est, 8)

	_, err = EstimateFile(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}
