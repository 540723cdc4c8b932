package wire

import "strings"

// Text renders the frame as plain text, one line per row with trailing
// blanks trimmed. Continuation cells of wide characters are skipped.
func (f FullFrame) Text() (string, error) {
	if f.Cols <= 0 || len(f.Cells) != f.Cols*f.Rows*CellSize {
		return "", errShortRecord
	}
	var b strings.Builder
	stride := f.Cols * CellSize
	for row := 0; row < f.Rows; row++ {
		cells, err := DecodeRow(f.Cells[row*stride : (row+1)*stride])
		if err != nil {
			return "", err
		}
		var line strings.Builder
		for _, c := range cells {
			if c.Width == 0 {
				continue
			}
			if c.Char == 0 {
				line.WriteByte(' ')
				continue
			}
			line.WriteRune(c.Char)
		}
		b.WriteString(strings.TrimRight(line.String(), " "))
		if row < f.Rows-1 {
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}
