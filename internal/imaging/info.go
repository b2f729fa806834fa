package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// ImageInfo contains metadata about a generated or supplied image.
type ImageInfo struct {
	// Width is the image width in pixels, after EXIF orientation is applied.
	Width int `json:"width"`

	// Height is the image height in pixels, after EXIF orientation is applied.
	Height int `json:"height"`

	// Format is the decoder name: "png", "jpeg" or "gif".
	// Detection is based on the bytes, not on any file name.
	Format string `json:"format"`

	// ColorDepth indicates the bit depth per channel: "8-bit" or "16-bit".
	ColorDepth string `json:"color_depth"`

	// HasAlpha indicates whether any pixel is not fully opaque.
	HasAlpha bool `json:"has_alpha"`

	// SizeBytes is the length of the encoded payload.
	SizeBytes int `json:"size_bytes"`
}

// ErrEmpty is returned by Describe for a zero-length payload.
var ErrEmpty = errors.New("empty image payload")

// Describe decodes an encoded image and reports its metadata.
//
// JPEG orientation tags are honored, so a portrait photo stored sideways
// reports its displayed dimensions. WebP is not among the registered decoders
// and yields an error; callers treat the metadata as optional.
func Describe(data []byte) (*ImageInfo, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	// DecodeConfig only reads the header; it is the one place the format name
	// is reported.
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()

	colorDepth := "8-bit"
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64, *image.Gray16:
		colorDepth = "16-bit"
	}

	hasAlpha := false
	if o, ok := img.(interface{ Opaque() bool }); ok {
		hasAlpha = !o.Opaque()
	}

	return &ImageInfo{
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Format:     format,
		ColorDepth: colorDepth,
		HasAlpha:   hasAlpha,
		SizeBytes:  len(data),
	}, nil
}

// String renders the metadata for a tool result, e.g.
// "64x32 png, 8-bit, alpha, 1234 bytes".
func (i *ImageInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%dx%d %s, %s", i.Width, i.Height, i.Format, i.ColorDepth)
	if i.HasAlpha {
		b.WriteString(", alpha")
	}
	fmt.Fprintf(&b, ", %d bytes", i.SizeBytes)
	return b.String()
}

// DetectMimeType guesses a MIME type from the file extension of path.
// It returns "" for extensions it does not know.
func DetectMimeType(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		return "image/webp"
	}

	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return ""
	}
	switch format {
	case imaging.PNG:
		return "image/png"
	case imaging.JPEG:
		return "image/jpeg"
	case imaging.GIF:
		return "image/gif"
	default:
		return ""
	}
}
