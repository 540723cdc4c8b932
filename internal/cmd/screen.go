package cmd

import (
	"fmt"
	"strings"

	"github.com/muesli/termenv"

	"github.com/user/phantom/internal/vt"
	"github.com/user/phantom/internal/wire"
)

// screen paints session events onto a real terminal.
type screen struct {
	out *termenv.Output
}

func newScreen(out *termenv.Output) *screen {
	return &screen{out: out}
}

func (s *screen) apply(ev wire.Event) error {
	switch ev := ev.(type) {
	case wire.FullFrame:
		if ev.Cols <= 0 {
			return nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, termenv.CSI+termenv.EraseDisplaySeq, 2)
		stride := ev.Cols * wire.CellSize
		for y := 0; y < ev.Rows; y++ {
			cells, err := wire.DecodeRow(ev.Cells[y*stride : (y+1)*stride])
			if err != nil {
				return err
			}
			s.drawRow(&b, y, cells)
		}
		s.placeCursor(&b, ev.Cursor)
		_, err := s.out.WriteString(b.String())
		return err

	case wire.DirtyRows:
		var b strings.Builder
		for _, row := range ev.Rows {
			cells, err := wire.DecodeRow(row.Cells)
			if err != nil {
				return err
			}
			s.drawRow(&b, row.Y, cells)
		}
		s.placeCursor(&b, ev.Cursor)
		_, err := s.out.WriteString(b.String())
		return err

	case wire.TitleChanged:
		s.out.SetWindowTitle(ev.Title)
	case wire.Bell:
		_, err := s.out.WriteString("\a")
		return err
	}
	return nil
}

// drawRow positions the cursor at the start of row y and writes the row.
func (s *screen) drawRow(b *strings.Builder, y int, cells []vt.Cell) {
	fmt.Fprintf(b, termenv.CSI+termenv.CursorPositionSeq, y+1, 1)
	s.writeCells(b, cells)
}

// writeCells writes cells as runs of identically styled text.
func (s *screen) writeCells(b *strings.Builder, cells []vt.Cell) {
	var run strings.Builder
	var runCell vt.Cell
	flush := func() {
		if run.Len() == 0 {
			return
		}
		b.WriteString(s.style(run.String(), runCell))
		run.Reset()
	}
	for _, c := range cells {
		if c.Width == 0 {
			continue
		}
		if run.Len() > 0 && !sameStyle(c, runCell) {
			flush()
		}
		runCell = c
		switch {
		case c.Flags.Has(vt.FlagHidden), c.Char == 0:
			run.WriteByte(' ')
		default:
			run.WriteRune(c.Char)
		}
	}
	flush()
}

// dump renders a frame as styled lines without cursor movement. Trailing
// blank rows are dropped.
func (s *screen) dump(frame wire.FullFrame) (string, error) {
	if frame.Cols <= 0 {
		return "", nil
	}
	stride := frame.Cols * wire.CellSize
	lines := make([]string, 0, frame.Rows)
	for y := 0; y < frame.Rows; y++ {
		cells, err := wire.DecodeRow(frame.Cells[y*stride : (y+1)*stride])
		if err != nil {
			return "", err
		}
		end := len(cells)
		for end > 0 && blank(cells[end-1]) {
			end--
		}
		var b strings.Builder
		s.writeCells(&b, cells[:end])
		lines = append(lines, b.String())
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return "", nil
	}
	return strings.Join(lines, "\n") + "\n", nil
}

func blank(c vt.Cell) bool {
	return (c.Char == ' ' || c.Char == 0) && c.Bg == vt.DefaultBackground && !c.Flags.Has(vt.FlagInverse)
}

func (s *screen) style(text string, c vt.Cell) string {
	st := s.out.String(text)
	if c.Fg != vt.DefaultForeground {
		st = st.Foreground(s.out.Color(hexColor(c.Fg)))
	}
	if c.Bg != vt.DefaultBackground {
		st = st.Background(s.out.Color(hexColor(c.Bg)))
	}
	if c.Flags.Has(vt.FlagBold) {
		st = st.Bold()
	}
	if c.Flags.Has(vt.FlagDim) {
		st = st.Faint()
	}
	if c.Flags.Has(vt.FlagItalic) {
		st = st.Italic()
	}
	if c.Flags.Has(vt.FlagUnderline) {
		st = st.Underline()
	}
	if c.Flags.Has(vt.FlagStrikethrough) {
		st = st.CrossOut()
	}
	if c.Flags.Has(vt.FlagInverse) {
		st = st.Reverse()
	}
	if c.Flags.Has(vt.FlagBlink) {
		st = st.Blink()
	}
	return st.String()
}

func (s *screen) placeCursor(b *strings.Builder, c wire.Cursor) {
	fmt.Fprintf(b, termenv.CSI+termenv.CursorPositionSeq, c.CursorRow+1, c.CursorCol+1)
	if c.CursorVisible {
		b.WriteString(termenv.CSI + termenv.ShowCursorSeq)
	} else {
		b.WriteString(termenv.CSI + termenv.HideCursorSeq)
	}
}

func sameStyle(a, b vt.Cell) bool {
	return a.Fg == b.Fg && a.Bg == b.Bg && a.Flags == b.Flags
}

func hexColor(c vt.RGB) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
