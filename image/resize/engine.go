// Package resize provides the image transformation capability: given a
// source byte stream and target dimensions, it produces a re-encoded image
// stream in the same format. It is stateless and has no side effects
// visible to the rest of the service.
package resize

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/draw"
)

// Engine scales images with a configurable interpolation kernel.
type Engine struct {
	scaler draw.Scaler
}

// NewEngine returns an Engine using Catmull-Rom interpolation.
func NewEngine() *Engine {
	return &Engine{scaler: draw.CatmullRom}
}

// Resize re-encodes src at the requested dimensions. A dimension of 0 is
// unconstrained: the missing axis is computed from the source's aspect
// ratio, and with both unset the image is re-encoded at its intrinsic
// size. The output format follows the source's recorded format token.
//
// The returned stream is produced by a pipe; a mid-transform failure
// surfaces as a read error on it.
func (e *Engine) Resize(src io.Reader, format string, width, height int) (io.ReadCloser, error) {
	pr, pw := io.Pipe()

	go func() {
		pw.CloseWithError(e.transform(src, pw, format, width, height))
	}()

	return pr, nil
}

func (e *Engine) transform(src io.Reader, dst io.Writer, format string, width, height int) error {
	img, decoded, err := image.Decode(src)
	if err != nil {
		return fmt.Errorf("failed to decode source image: %w", err)
	}

	bounds := img.Bounds()
	targetWidth, targetHeight := targetSize(bounds.Dx(), bounds.Dy(), width, height)

	if targetWidth != bounds.Dx() || targetHeight != bounds.Dy() {
		scaled := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
		e.scaler.Scale(scaled, scaled.Bounds(), img, bounds, draw.Src, nil)
		img = scaled
	}

	return encode(dst, img, format, decoded)
}

// targetSize computes output dimensions, deriving an unconstrained axis
// from the source's aspect ratio.
func targetSize(srcWidth, srcHeight, width, height int) (int, int) {
	switch {
	case width == 0 && height == 0:
		return srcWidth, srcHeight
	case height == 0:
		return width, max(1, srcHeight*width/srcWidth)
	case width == 0:
		return max(1, srcWidth*height/srcHeight), height
	default:
		return width, height
	}
}

// encode writes img in the source's recorded format. The token is a media
// type such as "image/png"; the decoder-reported name only fills in for
// records with no format at all.
func encode(dst io.Writer, img image.Image, format, decoded string) error {
	name := formatName(format)
	if format == "" {
		name = decoded
	}

	switch name {
	case "png":
		return png.Encode(dst, img)
	case "jpeg":
		return jpeg.Encode(dst, img, &jpeg.Options{Quality: 90})
	case "gif":
		return gif.Encode(dst, img, nil)
	default:
		return fmt.Errorf("unsupported image format %q", format)
	}
}

func formatName(format string) string {
	switch {
	case strings.Contains(format, "png"):
		return "png"
	case strings.Contains(format, "jp"):
		return "jpeg"
	case strings.Contains(format, "gif"):
		return "gif"
	default:
		return ""
	}
}
