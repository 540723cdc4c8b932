package vt

import (
	"bytes"
	"testing"
)

func TestWriteHelloPlacesCharacters(t *testing.T) {
	term := New(80, 24)
	term.Write([]byte("hello"))

	screen := term.Screen()
	for i, want := range "hello" {
		if got := screen.Cell(0, i).Char; got != want {
			t.Errorf("cell(0,%d) = %q, want %q", i, got, want)
		}
	}
	if got := screen.Cell(0, 5).Char; got != ' ' {
		t.Errorf("cell(0,5) = %q, want space", got)
	}
}

func TestCellOutOfRangeIsDefault(t *testing.T) {
	term := New(10, 5)
	if got := term.Screen().Cell(99, 99); got != DefaultCell {
		t.Fatalf("out of range cell = %+v, want default", got)
	}
	if got := term.Screen().Cell(-1, 0); got != DefaultCell {
		t.Fatalf("negative row cell = %+v, want default", got)
	}
}

func TestFreshEngineReportsFullDamageOnce(t *testing.T) {
	term := New(80, 24)

	if d := term.Damage(); !d.Full {
		t.Fatalf("first damage = %+v, want full", d)
	}
	term.ResetDamage()

	d := term.Damage()
	if d.Full {
		t.Fatal("damage after reset is full, want partial")
	}
	if len(d.Lines) != 0 {
		t.Fatalf("damage after reset = %+v, want no lines", d.Lines)
	}
}

func TestPartialDamageAfterWrite(t *testing.T) {
	term := New(80, 24)
	term.ResetDamage()

	term.Write([]byte("\x1b[3;1Habc"))
	d := term.Damage()
	if d.Full {
		t.Fatal("damage is full, want partial")
	}

	found := false
	for _, line := range d.Lines {
		if line.Row == 2 {
			found = true
			if line.Left > 0 || line.Right < 2 {
				t.Errorf("row 2 span = [%d,%d], want to cover [0,2]", line.Left, line.Right)
			}
		}
	}
	if !found {
		t.Fatalf("row 2 not damaged: %+v", d.Lines)
	}

	term.ResetDamage()
	if d := term.Damage(); len(d.Lines) != 0 {
		t.Fatalf("damage after second reset = %+v, want none", d.Lines)
	}
}

func TestScrollDamagesEveryRow(t *testing.T) {
	term := New(10, 3)
	term.Write([]byte("a\r\nb\r\nc"))
	term.ResetDamage()

	term.Write([]byte("\r\nd"))
	d := term.Damage()
	if d.Full {
		return
	}
	rows := make(map[int]bool)
	for _, line := range d.Lines {
		rows[line.Row] = true
	}
	for row := 0; row < 3; row++ {
		if !rows[row] {
			t.Errorf("row %d not damaged after scroll: %+v", row, d.Lines)
		}
	}
	if got := term.Screen().Cell(0, 0).Char; got != 'b' {
		t.Errorf("top row after scroll = %q, want 'b'", got)
	}
}

func TestResizeChangesDimensions(t *testing.T) {
	term := New(80, 24)
	term.ResetDamage()

	term.Resize(120, 40)
	if term.Screen().Cols() != 120 || term.Screen().Rows() != 40 {
		t.Fatalf("size = %dx%d, want 120x40", term.Screen().Cols(), term.Screen().Rows())
	}
	if d := term.Damage(); !d.Full {
		t.Fatal("damage after resize is not full")
	}
}

func TestWrapMovesCursorToNextRow(t *testing.T) {
	term := New(10, 5)
	term.Write([]byte("abcdefghijkl"))

	cur := term.Cursor()
	if cur.Row != 1 || cur.Col != 2 {
		t.Fatalf("cursor = (%d,%d), want (1,2)", cur.Row, cur.Col)
	}
	if got := term.Screen().Cell(1, 0).Char; got != 'k' {
		t.Errorf("cell(1,0) = %q, want 'k'", got)
	}
}

func TestBellIsEdgeTriggered(t *testing.T) {
	term := New(80, 24)
	term.Write([]byte("\x07\x07"))

	if !term.HasBell() {
		t.Fatal("first HasBell = false, want true")
	}
	if term.HasBell() {
		t.Fatal("second HasBell = true, want false")
	}
}

func TestDeviceStatusReportProducesWriteBack(t *testing.T) {
	term := New(80, 24)
	term.Write([]byte("\x1b[6n"))

	writes := term.TakePtyWrites()
	if len(writes) == 0 {
		t.Fatal("no write-backs after DSR")
	}
	if !bytes.HasPrefix(writes[0], []byte("\x1b[")) {
		t.Fatalf("write-back = %q, want ESC[ prefix", writes[0])
	}
	if again := term.TakePtyWrites(); len(again) != 0 {
		t.Fatalf("write-backs not drained: %q", again)
	}
}

func TestTitleSetAndReset(t *testing.T) {
	term := New(80, 24)
	if _, ok := term.Title(); ok {
		t.Fatal("fresh engine has a title")
	}

	term.Write([]byte("\x1b]0;build\x07"))
	title, ok := term.Title()
	if !ok || title != "build" {
		t.Fatalf("title = %q (%v), want build", title, ok)
	}

	term.Write([]byte("\x1b]0;\x07"))
	if _, ok := term.Title(); ok {
		t.Fatal("title still set after reset")
	}
}

func TestColorAndAttributeResolution(t *testing.T) {
	term := New(80, 24)
	term.Write([]byte("\x1b[1;3;31;44mX\x1b[0m"))

	c := term.Screen().Cell(0, 0)
	if !c.Flags.Has(FlagBold | FlagItalic) {
		t.Errorf("flags = %08b, want bold+italic", c.Flags)
	}
	if c.Fg != (RGB{205, 0, 0}) {
		t.Errorf("fg = %+v, want red", c.Fg)
	}
	if c.Bg != (RGB{0, 0, 238}) {
		t.Errorf("bg = %+v, want blue", c.Bg)
	}

	plain := term.Screen().Cell(0, 1)
	if plain.Fg != DefaultForeground || plain.Bg != DefaultBackground {
		t.Errorf("unset colors = %+v/%+v, want white on black", plain.Fg, plain.Bg)
	}
}

func TestDefaultColorResetsResolve(t *testing.T) {
	term := New(80, 24)
	term.Write([]byte("\x1b[31;44m\x1b[39;49mD"))

	c := term.Screen().Cell(0, 0)
	if c.Fg != DefaultForeground || c.Bg != DefaultBackground {
		t.Fatalf("colors after SGR 39/49 = %+v/%+v, want defaults", c.Fg, c.Bg)
	}
}

func TestResolveNamedDefaults(t *testing.T) {
	fallback := RGB{1, 2, 3}
	tests := []struct {
		name string
		in   int
		dim  bool
		want RGB
	}{
		{"foreground", 256, false, DefaultForeground},
		{"dim foreground", 256, true, dimForeground},
		{"background", 257, false, DefaultBackground},
		{"red", 1, false, ansiPalette[1]},
		{"dim red", 1, true, dimPalette[1]},
		{"bright white", 15, false, ansiPalette[15]},
		{"cursor", 258, false, fallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveNamed(tt.in, fallback, tt.dim); got != tt.want {
				t.Fatalf("resolveNamed(%d) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTrueColorPassesThrough(t *testing.T) {
	term := New(80, 24)
	term.Write([]byte("\x1b[38;2;10;20;30mZ"))

	if got := term.Screen().Cell(0, 0).Fg; got != (RGB{10, 20, 30}) {
		t.Fatalf("fg = %+v, want {10 20 30}", got)
	}
}

func TestWideCharOccupiesTwoCells(t *testing.T) {
	term := New(80, 24)
	term.Write([]byte("中"))

	screen := term.Screen()
	if c := screen.Cell(0, 0); c.Char != '中' || c.Width != 2 {
		t.Fatalf("cell(0,0) = %q width %d, want wide 中", c.Char, c.Width)
	}
	if c := screen.Cell(0, 1); c.Width != 0 {
		t.Fatalf("spacer width = %d, want 0", c.Width)
	}
	if cur := term.Cursor(); cur.Col != 2 {
		t.Fatalf("cursor col = %d, want 2", cur.Col)
	}
}

func TestHiddenCursor(t *testing.T) {
	term := New(80, 24)
	if cur := term.Cursor(); !cur.Visible || cur.Shape == CursorHidden {
		t.Fatalf("fresh cursor = %+v, want visible", cur)
	}

	term.Write([]byte("\x1b[?25l"))
	cur := term.Cursor()
	if cur.Visible || cur.Shape != CursorHidden {
		t.Fatalf("cursor = %+v, want hidden", cur)
	}
}

func TestIndexedRGB(t *testing.T) {
	tests := []struct {
		index int
		want  RGB
	}{
		{1, RGB{205, 0, 0}},
		{12, RGB{92, 92, 255}},
		{16, RGB{0, 0, 0}},
		{21, RGB{0, 0, 255}},
		{196, RGB{255, 0, 0}},
		{231, RGB{255, 255, 255}},
		{59, RGB{95, 95, 95}},
		{232, RGB{8, 8, 8}},
		{255, RGB{238, 238, 238}},
	}
	for _, tt := range tests {
		if got := IndexedRGB(tt.index); got != tt.want {
			t.Errorf("IndexedRGB(%d) = %+v, want %+v", tt.index, got, tt.want)
		}
	}
}

func TestCursorShapeString(t *testing.T) {
	tests := map[CursorShape]string{
		CursorBlock:     "block",
		CursorUnderline: "underline",
		CursorBar:       "bar",
		CursorHidden:    "hidden",
	}
	for shape, want := range tests {
		if got := shape.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", shape, got, want)
		}
	}
}
