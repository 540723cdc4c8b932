package vt

// RGB is a resolved 24-bit color.
type RGB struct {
	R, G, B uint8
}

// Flags is the attribute bitset of a cell. The bit positions are the ones
// used on the wire.
type Flags uint8

const (
	FlagBold Flags = 1 << iota
	FlagItalic
	FlagUnderline
	FlagStrikethrough
	FlagInverse
	FlagDim
	FlagHidden
	FlagBlink
)

// Has reports whether every bit in f2 is set in f.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

// Cell is one grid position: a character, its resolved colors, attributes
// and display width. Width is 2 for a wide glyph, 0 for the spacer that
// follows it and 1 otherwise.
type Cell struct {
	Char  rune
	Fg    RGB
	Bg    RGB
	Flags Flags
	Width uint8
}

// DefaultCell is what an empty or out-of-range position reads as.
var DefaultCell = Cell{
	Char:  ' ',
	Fg:    DefaultForeground,
	Bg:    DefaultBackground,
	Width: 1,
}

// CursorShape is the rendered shape of the cursor.
type CursorShape uint8

const (
	CursorBlock CursorShape = iota
	CursorUnderline
	CursorBar
	CursorHidden
)

func (s CursorShape) String() string {
	switch s {
	case CursorUnderline:
		return "underline"
	case CursorBar:
		return "bar"
	case CursorHidden:
		return "hidden"
	default:
		return "block"
	}
}

// Cursor is the cursor state at the time of the query.
type Cursor struct {
	Row     int
	Col     int
	Shape   CursorShape
	Visible bool
}

// LineDamage is the damaged column span of one row, inclusive on both ends.
type LineDamage struct {
	Row   int
	Left  int
	Right int
}

// Damage describes what changed since the last ResetDamage. When Full is set
// Lines is nil and the whole screen must be resent.
type Damage struct {
	Full  bool
	Lines []LineDamage
}
