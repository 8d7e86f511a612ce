// Package imageprep resizes and re-encodes captured frames into page-ready artifacts.
package imageprep

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"strings"

	"golang.org/x/image/draw"
)

// Format is an output image encoding.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// ParseFormat maps a loose format name to a Format. Unknown names return false.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return FormatPNG, true
	case "jpeg", "jpg":
		return FormatJPEG, true
	}
	return "", false
}

// MimeType returns the data URI media type for the format.
func (f Format) MimeType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// Lossy reports whether the format takes a quality setting.
func (f Format) Lossy() bool {
	return f == FormatJPEG
}

var (
	// ErrDecode is returned when the input frame cannot be read.
	ErrDecode = errors.New("imageprep: decode failed")
	// ErrEncode is returned when the output image cannot be produced.
	ErrEncode = errors.New("imageprep: encode failed")
)

// Options controls a single Preprocess call.
type Options struct {
	Format      Format
	Quality     int // 10-100, only used for FormatJPEG
	MaxLongEdge int
}

// PageArtifact is a re-encoded frame ready to embed as a PDF page.
type PageArtifact struct {
	DataURI     string
	Width       int
	Height      int
	Format      Format
	ApproxBytes int
}

// Bytes decodes the artifact's data URI back to raw image bytes.
func (a *PageArtifact) Bytes() ([]byte, error) {
	_, data, err := DecodeDataURI(a.DataURI)
	return data, err
}

// Preprocess decodes a frame data URI, downsizes it so its long edge is at most
// opts.MaxLongEdge, and re-encodes it in opts.Format.
func Preprocess(frameDataURI string, opts Options) (*PageArtifact, error) {
	_, raw, err := DecodeDataURI(frameDataURI)
	if err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	b := src.Bounds()
	w, h := TargetSize(b.Dx(), b.Dy(), opts.MaxLongEdge)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	}

	var buf bytes.Buffer
	switch opts.Format {
	case FormatPNG:
		err = png.Encode(&buf, dst)
	case FormatJPEG:
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality})
	default:
		err = fmt.Errorf("unsupported format %q", opts.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
	return &PageArtifact{
		DataURI:     "data:" + opts.Format.MimeType() + ";base64," + encoded,
		Width:       w,
		Height:      h,
		Format:      opts.Format,
		ApproxBytes: EstimateBytes(len(encoded)),
	}, nil
}

// TargetSize returns the scaled dimensions for a width x height frame so that the
// long edge does not exceed maxLongEdge. A non-positive maxLongEdge disables scaling.
func TargetSize(width, height, maxLongEdge int) (int, int) {
	longEdge := max(width, height)
	if maxLongEdge <= 0 || longEdge <= maxLongEdge {
		return width, height
	}
	scale := float64(maxLongEdge) / float64(longEdge)
	w := max(1, int(math.Round(float64(width)*scale)))
	h := max(1, int(math.Round(float64(height)*scale)))
	return w, h
}

// EstimateBytes converts a base64 payload length to the decoded byte count.
func EstimateBytes(encodedLen int) int {
	return int(math.Ceil(float64(encodedLen) * 3 / 4))
}

// DecodeDataURI splits a base64 data URI into its media type and payload.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: not a data URI", ErrDecode)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: malformed data URI", ErrDecode)
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("%w: data URI is not base64", ErrDecode)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return mediaType, data, nil
}

// EncodeDataURI builds a base64 data URI for data.
func EncodeDataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
