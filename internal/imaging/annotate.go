package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// Box is one detection to draw on an annotated render.
type Box struct {
	Rect       image.Rectangle
	Class      int
	Confidence float64
}

const boxThickness = 2

// ClassColor returns the stable overlay colour of a class index.
func ClassColor(class int) color.NRGBA {
	hue := math.Mod(float64(class)*137.5+20, 360)
	if hue < 0 {
		hue += 360
	}
	r, g, b := colorful.Hsv(hue, 0.85, 0.95).RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// Annotate returns a copy of img with every box outlined and tagged with
// "class:confidence". The source image is not modified.
func Annotate(img image.Image, boxes []Box) *image.NRGBA {
	dst := imaging.Clone(img)

	for _, b := range boxes {
		c := ClassColor(b.Class)
		r := b.Rect.Intersect(dst.Bounds())
		if r.Empty() {
			continue
		}
		drawRect(dst, r, c)

		label := fmt.Sprintf("%d:%.2f", b.Class, b.Confidence)
		ly := r.Min.Y - 8
		if ly < dst.Bounds().Min.Y {
			ly = r.Min.Y + boxThickness + 1
		}
		drawLabel(dst, r.Min.X+1, ly, label, color.NRGBA{255, 255, 255, 255}, c)
	}

	return dst
}

// drawRect outlines r with the box thickness, clipped to the image.
func drawRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	for t := 0; t < boxThickness; t++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			setClipped(img, x, r.Min.Y+t, c)
			setClipped(img, x, r.Max.Y-1-t, c)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			setClipped(img, r.Min.X+t, y, c)
			setClipped(img, r.Max.X-1-t, y, c)
		}
	}
}

func setClipped(img *image.NRGBA, x, y int, c color.NRGBA) {
	if (image.Point{x, y}).In(img.Bounds()) {
		img.SetNRGBA(x, y, c)
	}
}

// glyphs is a 3x5 pixel font covering the characters of a box tag.
var glyphs = map[rune][]string{
	'0': {"111", "101", "101", "101", "111"},
	'1': {"010", "110", "010", "010", "111"},
	'2': {"111", "001", "111", "100", "111"},
	'3': {"111", "001", "111", "001", "111"},
	'4': {"101", "101", "111", "001", "001"},
	'5': {"111", "100", "111", "001", "111"},
	'6': {"111", "100", "111", "101", "111"},
	'7': {"111", "001", "001", "001", "001"},
	'8': {"111", "101", "111", "101", "111"},
	'9': {"111", "101", "111", "001", "111"},
	'.': {"000", "000", "000", "000", "010"},
	':': {"000", "010", "000", "010", "000"},
	'-': {"000", "000", "111", "000", "000"},
}

// drawLabel draws text on a filled background at (x, y).
func drawLabel(img *image.NRGBA, x, y int, text string, fg, bg color.NRGBA) {
	charWidth := 4
	labelWidth := len(text) * charWidth
	labelHeight := 7

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < labelWidth; dx++ {
			setClipped(img, x+dx, y+dy, bg)
		}
	}

	cx := x
	for _, ch := range text {
		glyph, ok := glyphs[ch]
		if !ok {
			cx += charWidth
			continue
		}
		for row, line := range glyph {
			for col, pixel := range line {
				if pixel == '1' {
					setClipped(img, cx+col, y+row, fg)
				}
			}
		}
		cx += charWidth
	}
}
