// Package images turns image files into the self-contained strings stored in
// an entry's image list.
package images

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// MaxFileSize is the largest image accepted, in bytes.
const MaxFileSize = 5 * 1024 * 1024

// sniffLen is how many leading bytes content detection looks at.
const sniffLen = 512

var (
	// ErrNotImage is returned when the content is not a recognized image.
	ErrNotImage = errors.New("not an image")

	// ErrImageTooLarge is returned when the content exceeds MaxFileSize.
	ErrImageTooLarge = errors.New("image too large")
)

// Encode reads an image from r and returns it as a base64 data URL. The
// name is used in error messages only.
func Encode(r io.Reader, name string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", name, err)
	}
	if len(data) > MaxFileSize {
		return "", fmt.Errorf("%w: %s is larger than %d bytes", ErrImageTooLarge, name, MaxFileSize)
	}

	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	mime := http.DetectContentType(head)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%w: %s has type %s", ErrNotImage, name, mime)
	}

	var b strings.Builder
	b.Grow(len("data:;base64,") + len(mime) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(mime)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String(), nil
}

// EstimateFile returns about how many bytes the encoded form of the file at
// path takes, without reading its content.
func EstimateFile(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat image: %w", err)
	}
	return int64(len("data:image/jpeg;base64,") + base64.StdEncoding.EncodedLen(int(info.Size()))), nil
}

// EncodeFile encodes the image at path.
func EncodeFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() > MaxFileSize {
		return "", fmt.Errorf("%w: %s is %d bytes", ErrImageTooLarge, path, info.Size())
	}
	return Encode(f, path)
}
