package wire

import (
	"encoding/json"
	"fmt"

	"github.com/user/phantom/internal/vt"
)

// Kind is the tag of an event on the wire.
type Kind string

const (
	KindFullFrame    Kind = "FullFrame"
	KindDirtyRows    Kind = "DirtyRows"
	KindTitleChanged Kind = "TitleChanged"
	KindBell         Kind = "Bell"
	KindExited       Kind = "Exited"
)

// Event is one message of a session's output stream.
type Event interface {
	Kind() Kind
}

// Cursor is the cursor block shared by frame events.
type Cursor struct {
	CursorRow     int    `json:"cursor_row"`
	CursorCol     int    `json:"cursor_col"`
	CursorShape   string `json:"cursor_shape"`
	CursorVisible bool   `json:"cursor_visible"`
}

func CursorOf(c vt.Cursor) Cursor {
	return Cursor{
		CursorRow:     c.Row,
		CursorCol:     c.Col,
		CursorShape:   c.Shape.String(),
		CursorVisible: c.Visible,
	}
}

// FullFrame carries the entire grid, row-major, 16 bytes per cell.
type FullFrame struct {
	Cols  int    `json:"cols"`
	Rows  int    `json:"rows"`
	Cells []byte `json:"cells"`
	Cursor
}

// DirtyRow is one re-sent row.
type DirtyRow struct {
	Y     int    `json:"y"`
	Cells []byte `json:"cells"`
}

// DirtyRows carries only the rows that changed since the previous frame.
type DirtyRows struct {
	Rows []DirtyRow `json:"rows"`
	Cursor
}

type TitleChanged struct {
	Title string `json:"title"`
}

type Bell struct{}

// Exited is the final event of a session. Code is nil when the exit status
// could not be determined.
type Exited struct {
	Code *int `json:"code"`
}

func (FullFrame) Kind() Kind    { return KindFullFrame }
func (DirtyRows) Kind() Kind    { return KindDirtyRows }
func (TitleChanged) Kind() Kind { return KindTitleChanged }
func (Bell) Kind() Kind         { return KindBell }
func (Exited) Kind() Kind       { return KindExited }

// NewFullFrame encodes the whole screen with the given cursor.
func NewFullFrame(s vt.Screen, c vt.Cursor) FullFrame {
	return FullFrame{
		Cols:   s.Cols(),
		Rows:   s.Rows(),
		Cells:  EncodeScreen(s),
		Cursor: CursorOf(c),
	}
}

// NewDirtyRows encodes the listed rows with the given cursor.
func NewDirtyRows(s vt.Screen, rows []int, c vt.Cursor) DirtyRows {
	out := DirtyRows{Rows: make([]DirtyRow, 0, len(rows)), Cursor: CursorOf(c)}
	for _, y := range rows {
		out.Rows = append(out.Rows, DirtyRow{Y: y, Cells: EncodeRow(s, y)})
	}
	return out
}

// Marshal encodes an event as JSON with a "type" tag alongside its fields.
func Marshal(e Event) ([]byte, error) {
	switch v := e.(type) {
	case FullFrame:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			FullFrame
		}{v.Kind(), v})
	case DirtyRows:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			DirtyRows
		}{v.Kind(), v})
	case TitleChanged:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			TitleChanged
		}{v.Kind(), v})
	case Bell:
		return json.Marshal(struct {
			Type Kind `json:"type"`
		}{v.Kind()})
	case Exited:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			Exited
		}{v.Kind(), v})
	default:
		return nil, fmt.Errorf("wire: unknown event %T", e)
	}
}

// Unmarshal decodes a tagged JSON event.
func Unmarshal(data []byte) (Event, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	var (
		ev  Event
		err error
	)
	switch head.Type {
	case KindFullFrame:
		var v FullFrame
		err = json.Unmarshal(data, &v)
		ev = v
	case KindDirtyRows:
		var v DirtyRows
		err = json.Unmarshal(data, &v)
		ev = v
	case KindTitleChanged:
		var v TitleChanged
		err = json.Unmarshal(data, &v)
		ev = v
	case KindBell:
		ev = Bell{}
	case KindExited:
		var v Exited
		err = json.Unmarshal(data, &v)
		ev = v
	default:
		return nil, fmt.Errorf("wire: unknown event type %q", head.Type)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}
