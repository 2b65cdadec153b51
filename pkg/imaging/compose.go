// Package imaging renders spread images: card faces scaled, rotated and placed on a background.
package imaging

import (
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"tarotbot/pkg/spreads"
)

// WorkAreaOffset moves layout coordinates of the 512x512 work area onto the
// 1024x1024 background it is centred in.
const WorkAreaOffset = 256

var ErrLayoutMismatch = errors.New("card count does not match layout")

// Compose draws cards onto a copy of bg. Card i is scaled by scale, rotated
// clockwise by layout[i].Rotation degrees around its centre and centred at
// (layout[i].X+256, layout[i].Y+256). bg is never modified.
func Compose(bg image.Image, cards []image.Image, layout []spreads.Slot, scale float64) (*image.RGBA, error) {
	if bg == nil {
		return nil, fmt.Errorf("background is nil")
	}
	if len(cards) != len(layout) {
		return nil, fmt.Errorf("%w: %d cards, %d slots", ErrLayoutMismatch, len(cards), len(layout))
	}
	if scale <= 0 || scale > 1 {
		return nil, fmt.Errorf("scale must be in (0, 1], got %v", scale)
	}

	bounds := bg.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, bg, bounds.Min, draw.Src)

	for i, card := range cards {
		if card == nil {
			return nil, fmt.Errorf("card %d image is nil", i)
		}
		slot := layout[i]
		cx := float64(bounds.Min.X) + slot.X + WorkAreaOffset
		cy := float64(bounds.Min.Y) + slot.Y + WorkAreaOffset
		draw.CatmullRom.Transform(dst, placement(card.Bounds(), cx, cy, slot.Rotation, scale), card, card.Bounds(), draw.Over, nil)
	}
	return dst, nil
}

// placement maps source pixels to destination pixels: scale and rotate around
// the source centre, then move that centre to (cx, cy).
func placement(src image.Rectangle, cx, cy, degrees, scale float64) f64.Aff3 {
	rad := degrees * math.Pi / 180
	sin, cos := math.Sincos(rad)
	a, b := scale*cos, -scale*sin
	d, e := scale*sin, scale*cos

	sx := float64(src.Min.X) + float64(src.Dx())/2
	sy := float64(src.Min.Y) + float64(src.Dy())/2
	return f64.Aff3{
		a, b, cx - (a*sx + b*sy),
		d, e, cy - (d*sx + e*sy),
	}
}
