package services

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// svgToPNG rasterizes SVG data onto a white width x height canvas,
// scaled to fit while preserving the aspect ratio.
func svgToPNG(svgData []byte, width, height int) ([]byte, error) {
	if width <= 0 {
		width = 128
	}
	if height <= 0 {
		height = width
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, err
	}

	w, h := icon.ViewBox.W, icon.ViewBox.H
	if w <= 0 || h <= 0 {
		w, h = float64(width), float64(height)
	}

	scale := min(float64(width)/w, float64(height)/h)
	outW := int(w * scale)
	outH := int(h * scale)
	offsetX := (width - outW) / 2
	offsetY := (height - outH) / 2
	icon.SetTarget(float64(offsetX), float64(offsetY), float64(outW), float64(outH))

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	raster := rasterx.NewDasher(width, height, scanner)
	icon.Draw(raster, 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
