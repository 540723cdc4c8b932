package vt

import (
	headlessterm "github.com/danielgatis/go-headless-term"
)

// Engine is the capability the session layer needs from a VT emulator.
// Implementations are not safe for concurrent use; callers serialize access.
type Engine interface {
	Write(p []byte)
	Screen() Screen
	Cursor() Cursor
	Resize(cols, rows int)
	Damage() Damage
	ResetDamage()
	Title() (string, bool)
	TakePtyWrites() [][]byte
	HasBell() bool
}

// Screen is a read-only view of the visible grid.
type Screen interface {
	Rows() int
	Cols() int
	Cell(row, col int) Cell
}

// Terminal adapts go-headless-term to Engine and adds damage tracking that
// also covers scrolls and cursor movement.
type Terminal struct {
	term *headlessterm.Terminal

	writes [][]byte
	bell   bool

	full    bool
	written bool
	shadow  [][]Cell
	cursor  Cursor
	alt     bool
}

var _ Engine = (*Terminal)(nil)

// Option configures a Terminal.
type Option func(*options)

type options struct {
	scrollback headlessterm.ScrollbackProvider
}

// WithScrollback keeps scrolled-off lines in the given storage.
func WithScrollback(p headlessterm.ScrollbackProvider) Option {
	return func(o *options) { o.scrollback = p }
}

// New creates an engine with the given grid size. The first Damage call
// reports Full.
func New(cols, rows int, opts ...Option) *Terminal {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	t := &Terminal{full: true}
	termOpts := []headlessterm.Option{
		headlessterm.WithSize(rows, cols),
		headlessterm.WithResponse(responseSink{t}),
		headlessterm.WithBell(bellSink{t}),
	}
	if o.scrollback != nil {
		termOpts = append(termOpts, headlessterm.WithScrollback(o.scrollback))
	}
	t.term = headlessterm.New(termOpts...)
	t.cursor = t.Cursor()
	return t
}

type responseSink struct{ t *Terminal }

func (s responseSink) Write(p []byte) (int, error) {
	s.t.writes = append(s.t.writes, append([]byte(nil), p...))
	return len(p), nil
}

type bellSink struct{ t *Terminal }

func (s bellSink) Ring() { s.t.bell = true }

// Write feeds raw child output through the parser.
func (t *Terminal) Write(p []byte) {
	if len(p) == 0 {
		return
	}
	t.written = true
	_, _ = t.term.Write(p)
}

func (t *Terminal) Screen() Screen { return screenView{t.term} }

func (t *Terminal) Rows() int { return t.term.Rows() }

func (t *Terminal) Cols() int { return t.term.Cols() }

// Cursor returns the cursor clamped to the grid. A cursor parked past the
// last column after a full line reads as the last column.
func (t *Terminal) Cursor() Cursor {
	row, col := t.term.CursorPos()
	rows, cols := t.term.Rows(), t.term.Cols()
	if col >= cols {
		col = cols - 1
	}
	if row >= rows {
		row = rows - 1
	}
	if row < 0 {
		row = 0
	}
	if col < 0 {
		col = 0
	}
	c := Cursor{Row: row, Col: col, Visible: t.term.CursorVisible()}
	if !c.Visible {
		c.Shape = CursorHidden
		return c
	}
	c.Shape = convertCursorStyle(t.term.CursorStyle())
	return c
}

// Resize changes the grid size; the next Damage call reports Full.
func (t *Terminal) Resize(cols, rows int) {
	if cols <= 0 || rows <= 0 {
		return
	}
	t.term.Resize(rows, cols)
	t.full = true
}

// Damage reports what changed since the last ResetDamage. Rows touched by
// writes, rows whose content moved (scrolls, erases) and the old and new
// cursor positions are all included.
func (t *Terminal) Damage() Damage {
	rows, cols := t.term.Rows(), t.term.Cols()
	if t.full || t.term.IsAlternateScreen() != t.alt || len(t.shadow) != rows || (rows > 0 && len(t.shadow[0]) != cols) {
		return Damage{Full: true}
	}

	spans := make(map[int]*LineDamage)
	mark := func(row, left, right int) {
		if row < 0 || row >= rows {
			return
		}
		if d, ok := spans[row]; ok {
			d.Left = min(d.Left, left)
			d.Right = max(d.Right, right)
			return
		}
		spans[row] = &LineDamage{Row: row, Left: left, Right: right}
	}

	if t.written {
		for _, p := range t.term.DirtyCells() {
			mark(p.Row, p.Col, p.Col)
		}
		for row := 0; row < rows; row++ {
			left, right := -1, -1
			for col := 0; col < cols; col++ {
				if readCell(t.term, row, col) != t.shadow[row][col] {
					if left < 0 {
						left = col
					}
					right = col
				}
			}
			if left >= 0 {
				mark(row, left, right)
			}
		}
	}

	cur := t.Cursor()
	if cur.Row != t.cursor.Row || cur.Col != t.cursor.Col || cur.Shape != t.cursor.Shape {
		mark(t.cursor.Row, t.cursor.Col, t.cursor.Col)
		mark(cur.Row, cur.Col, cur.Col)
	}

	lines := make([]LineDamage, 0, len(spans))
	for row := 0; row < rows; row++ {
		if d, ok := spans[row]; ok {
			lines = append(lines, *d)
		}
	}
	return Damage{Lines: lines}
}

// ResetDamage marks the current grid as delivered.
func (t *Terminal) ResetDamage() {
	t.term.ClearDirty()
	t.full = false
	t.written = false
	t.alt = t.term.IsAlternateScreen()
	t.cursor = t.Cursor()

	rows, cols := t.term.Rows(), t.term.Cols()
	if len(t.shadow) != rows {
		t.shadow = make([][]Cell, rows)
	}
	for row := range t.shadow {
		if len(t.shadow[row]) != cols {
			t.shadow[row] = make([]Cell, cols)
		}
		for col := 0; col < cols; col++ {
			t.shadow[row][col] = readCell(t.term, row, col)
		}
	}
}

// Title returns the window title set by OSC 0/2. An empty title reads as
// unset.
func (t *Terminal) Title() (string, bool) {
	title := t.term.Title()
	return title, title != ""
}

// TakePtyWrites drains the replies the emulator produced for the child,
// such as cursor position reports.
func (t *Terminal) TakePtyWrites() [][]byte {
	w := t.writes
	t.writes = nil
	return w
}

// HasBell reports whether BEL arrived since the previous call.
func (t *Terminal) HasBell() bool {
	b := t.bell
	t.bell = false
	return b
}

type screenView struct {
	term *headlessterm.Terminal
}

func (s screenView) Rows() int { return s.term.Rows() }

func (s screenView) Cols() int { return s.term.Cols() }

func (s screenView) Cell(row, col int) Cell { return readCell(s.term, row, col) }

func readCell(term *headlessterm.Terminal, row, col int) Cell {
	c := term.Cell(row, col)
	if c == nil {
		return DefaultCell
	}
	return convertCell(c)
}

func convertCell(c *headlessterm.Cell) Cell {
	out := Cell{Char: c.Char, Width: 1}
	if out.Char == 0 {
		out.Char = ' '
	}

	dim := c.Flags&headlessterm.CellFlagDim != 0
	out.Fg = resolveColor(c.Fg, DefaultForeground, dim)
	out.Bg = resolveColor(c.Bg, DefaultBackground, false)

	if c.Flags&headlessterm.CellFlagBold != 0 {
		out.Flags |= FlagBold
	}
	if c.Flags&headlessterm.CellFlagItalic != 0 {
		out.Flags |= FlagItalic
	}
	if c.Flags&(headlessterm.CellFlagUnderline|headlessterm.CellFlagDoubleUnderline|headlessterm.CellFlagCurlyUnderline|headlessterm.CellFlagDottedUnderline|headlessterm.CellFlagDashedUnderline) != 0 {
		out.Flags |= FlagUnderline
	}
	if c.Flags&headlessterm.CellFlagStrike != 0 {
		out.Flags |= FlagStrikethrough
	}
	if c.Flags&headlessterm.CellFlagReverse != 0 {
		out.Flags |= FlagInverse
	}
	if dim {
		out.Flags |= FlagDim
	}
	if c.Flags&headlessterm.CellFlagHidden != 0 {
		out.Flags |= FlagHidden
	}
	if c.Flags&(headlessterm.CellFlagBlinkSlow|headlessterm.CellFlagBlinkFast) != 0 {
		out.Flags |= FlagBlink
	}

	switch {
	case c.Flags&headlessterm.CellFlagWideChar != 0:
		out.Width = 2
	case c.Flags&headlessterm.CellFlagWideCharSpacer != 0:
		out.Width = 0
	}
	return out
}

func convertCursorStyle(s headlessterm.CursorStyle) CursorShape {
	switch s {
	case headlessterm.CursorStyleBlinkingUnderline, headlessterm.CursorStyleSteadyUnderline:
		return CursorUnderline
	case headlessterm.CursorStyleBlinkingBar, headlessterm.CursorStyleSteadyBar:
		return CursorBar
	default:
		return CursorBlock
	}
}
