package client

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ApplyWatermark draws text in the bottom-right corner, white at 60% alpha,
// and re-encodes as JPEG. The offline upload path uses it when the caller
// asked for a watermark.
func ApplyWatermark(data []byte, text string) ([]byte, error) {
	if text == "" {
		text = "ImageGallery"
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Src)

	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	margin := 10
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 153}),
		Face: face,
		Dot: fixed.P(
			bounds.Max.X-width-margin,
			bounds.Max.Y-margin,
		),
	}
	d.DrawString(text)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, canvas, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}
