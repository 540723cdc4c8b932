// Package wire defines the binary cell encoding and the event union sent to
// terminal consumers.
package wire

import (
	"encoding/binary"
	"errors"

	"github.com/user/phantom/internal/vt"
)

// CellSize is the encoded size of one cell.
const CellSize = 16

// Cell record layout:
//
//	[0:4]   codepoint, uint32 little-endian
//	[4:7]   foreground RGB
//	[7:10]  background RGB
//	[10]    attribute flags
//	[11]    display width (0, 1 or 2)
//	[12:14] reserved (hyperlink id)
//	[14]    reserved (grapheme length)
//	[15]    padding
const (
	offCodepoint = 0
	offFg        = 4
	offBg        = 7
	offFlags     = 10
	offWidth     = 11
)

var errShortRecord = errors.New("wire: cell record shorter than 16 bytes")

// PutCell writes the 16-byte record for c into b, which must hold at least
// CellSize bytes.
func PutCell(b []byte, c vt.Cell) {
	_ = b[CellSize-1]
	binary.LittleEndian.PutUint32(b[offCodepoint:], uint32(c.Char))
	b[offFg], b[offFg+1], b[offFg+2] = c.Fg.R, c.Fg.G, c.Fg.B
	b[offBg], b[offBg+1], b[offBg+2] = c.Bg.R, c.Bg.G, c.Bg.B
	b[offFlags] = byte(c.Flags)
	b[offWidth] = c.Width
	b[12], b[13], b[14], b[15] = 0, 0, 0, 0
}

// EncodeCell returns the record for one cell.
func EncodeCell(c vt.Cell) [CellSize]byte {
	var buf [CellSize]byte
	PutCell(buf[:], c)
	return buf
}

// DecodeCell parses one record.
func DecodeCell(b []byte) (vt.Cell, error) {
	if len(b) < CellSize {
		return vt.Cell{}, errShortRecord
	}
	return vt.Cell{
		Char:  rune(binary.LittleEndian.Uint32(b[offCodepoint:])),
		Fg:    vt.RGB{R: b[offFg], G: b[offFg+1], B: b[offFg+2]},
		Bg:    vt.RGB{R: b[offBg], G: b[offBg+1], B: b[offBg+2]},
		Flags: vt.Flags(b[offFlags]),
		Width: b[offWidth],
	}, nil
}

// EncodeRow encodes one screen row left to right, cols*16 bytes.
func EncodeRow(s vt.Screen, row int) []byte {
	cols := s.Cols()
	buf := make([]byte, cols*CellSize)
	for col := 0; col < cols; col++ {
		PutCell(buf[col*CellSize:], s.Cell(row, col))
	}
	return buf
}

// EncodeScreen encodes the whole grid row-major.
func EncodeScreen(s vt.Screen) []byte {
	rows, cols := s.Rows(), s.Cols()
	buf := make([]byte, rows*cols*CellSize)
	for row := 0; row < rows; row++ {
		base := row * cols * CellSize
		for col := 0; col < cols; col++ {
			PutCell(buf[base+col*CellSize:], s.Cell(row, col))
		}
	}
	return buf
}

// DecodeRow splits a row payload back into cells.
func DecodeRow(b []byte) ([]vt.Cell, error) {
	if len(b)%CellSize != 0 {
		return nil, errShortRecord
	}
	cells := make([]vt.Cell, 0, len(b)/CellSize)
	for off := 0; off < len(b); off += CellSize {
		c, err := DecodeCell(b[off : off+CellSize])
		if err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return cells, nil
}
