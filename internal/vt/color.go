package vt

import (
	"image/color"

	"github.com/danielgatis/go-ansicode"
	headlessterm "github.com/danielgatis/go-headless-term"
)

var (
	DefaultForeground = RGB{255, 255, 255}
	DefaultBackground = RGB{0, 0, 0}
)

// ansiPalette holds the xterm values for the 16 base colors.
var ansiPalette = [16]RGB{
	{0, 0, 0},
	{205, 0, 0},
	{0, 205, 0},
	{205, 205, 0},
	{0, 0, 238},
	{205, 0, 205},
	{0, 205, 205},
	{229, 229, 229},
	{127, 127, 127},
	{255, 0, 0},
	{0, 255, 0},
	{255, 255, 0},
	{92, 92, 255},
	{255, 0, 255},
	{0, 255, 255},
	{255, 255, 255},
}

// dimPalette is applied to the eight normal colors when a cell is dim.
var dimPalette = [8]RGB{
	{0, 0, 0},
	{154, 0, 0},
	{0, 154, 0},
	{154, 154, 0},
	{0, 0, 178},
	{154, 0, 154},
	{0, 154, 154},
	{178, 178, 178},
}

var dimForeground = RGB{178, 178, 178}

// IndexedRGB resolves a 256-color palette index.
func IndexedRGB(index int) RGB {
	switch {
	case index < 0:
		return DefaultForeground
	case index < 16:
		return ansiPalette[index]
	case index < 232:
		n := index - 16
		return RGB{cubeComponent(n / 36 % 6), cubeComponent(n / 6 % 6), cubeComponent(n % 6)}
	case index < 256:
		v := uint8(8 + 10*(index-232))
		return RGB{v, v, v}
	default:
		return DefaultForeground
	}
}

func cubeComponent(v int) uint8 {
	if v == 0 {
		return 0
	}
	return uint8(55 + 40*v)
}

// resolveColor turns an engine color into RGB. fallback is used for unset
// colors and for named colors outside the base palette.
func resolveColor(c color.Color, fallback RGB, dim bool) RGB {
	switch v := c.(type) {
	case nil:
		if dim && fallback == DefaultForeground {
			return dimForeground
		}
		return fallback
	case *headlessterm.NamedColor:
		return resolveNamed(v.Name, fallback, dim)
	case *headlessterm.IndexedColor:
		if dim && v.Index >= 0 && v.Index < 8 {
			return dimPalette[v.Index]
		}
		return IndexedRGB(v.Index)
	case color.RGBA:
		return RGB{v.R, v.G, v.B}
	default:
		r, g, b, _ := c.RGBA()
		return RGB{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
	}
}

func resolveNamed(name int, fallback RGB, dim bool) RGB {
	switch {
	case name == int(ansicode.NamedColorForeground):
		if dim {
			return dimForeground
		}
		return DefaultForeground
	case name == int(ansicode.NamedColorBackground):
		return DefaultBackground
	case name >= 0 && name < 8 && dim:
		return dimPalette[name]
	case name >= 0 && name < 16:
		return ansiPalette[name]
	default:
		return fallback
	}
}
