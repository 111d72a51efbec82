package browser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// MaxPageSize limits decoded page input
const MaxPageSize = 32 << 20

var (
	ErrNotHTML      = errors.New("content is not HTML")
	ErrPageTooLarge = errors.New("page exceeds size limit")
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// decodePage turns captured bytes into UTF-8 markup. Compressed captures
// are inflated, binary content is rejected, and the charset comes from the
// BOM, the Content-Type or a <meta> tag, falling back to detection.
func decodePage(body []byte, contentType string) (string, error) {
	body, err := decompress(body)
	if err != nil {
		return "", err
	}

	if mt := mimetype.Detect(body); !isText(mt) {
		return "", fmt.Errorf("%w: detected %s", ErrNotHTML, mt.String())
	}

	label := detectCharset(body, contentType)
	r, err := charset.NewReaderLabel(label, bytes.NewReader(body))
	if err != nil {
		// Unknown label, keep the bytes as they are
		return string(body), nil
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", label, err)
	}
	return string(out), nil
}

func decompress(body []byte) ([]byte, error) {
	var r io.Reader
	switch {
	case bytes.HasPrefix(body, gzipMagic):
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	case bytes.HasPrefix(body, zstdMagic):
		zr, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		return body, nil
	}

	out, err := io.ReadAll(io.LimitReader(r, MaxPageSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	if len(out) > MaxPageSize {
		return nil, ErrPageTooLarge
	}
	return out, nil
}

// isText accepts text/plain and everything below it, HTML and XHTML included
func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") || m.Is("text/html") {
			return true
		}
	}
	return false
}

func detectCharset(body []byte, contentType string) string {
	_, name, certain := charset.DetermineEncoding(body, contentType)
	if certain || name != "windows-1252" {
		return name
	}

	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(body)
	if err != nil || result == nil || result.Confidence < 50 {
		return name
	}
	return strings.ToLower(result.Charset)
}
