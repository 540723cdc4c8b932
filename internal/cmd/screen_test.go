package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/muesli/termenv"

	"github.com/user/phantom/internal/vt"
	"github.com/user/phantom/internal/wire"
)

func TestScreenPaintsFullFrame(t *testing.T) {
	term := vt.New(5, 2)
	term.Write([]byte("\x1b[31mhi\x1b[0m"))

	var buf bytes.Buffer
	scr := newScreen(termenv.NewOutput(&buf, termenv.WithProfile(termenv.TrueColor)))
	if err := scr.apply(wire.NewFullFrame(term.Screen(), term.Cursor())); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got := buf.String()
	for _, want := range []string{"\x1b[2J", "\x1b[1;1H", "\x1b[2;1H", "38;2;", "hi", "\x1b[1;3H", "\x1b[?25h"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q: %q", want, got)
		}
	}
}

func TestScreenPaintsDirtyRowsOnly(t *testing.T) {
	term := vt.New(4, 3)
	term.Write([]byte("\x1b[2;1Hab"))

	var buf bytes.Buffer
	scr := newScreen(termenv.NewOutput(&buf, termenv.WithProfile(termenv.Ascii)))
	if err := scr.apply(wire.NewDirtyRows(term.Screen(), []int{1}, term.Cursor())); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "\x1b[2;1Hab  ") {
		t.Fatalf("row 1 not painted: %q", got)
	}
	if strings.Contains(got, "\x1b[1;1H") || strings.Contains(got, "\x1b[2J") {
		t.Fatalf("untouched rows repainted: %q", got)
	}
}

func TestScreenTitleAndBell(t *testing.T) {
	var buf bytes.Buffer
	scr := newScreen(termenv.NewOutput(&buf, termenv.WithProfile(termenv.Ascii)))
	_ = scr.apply(wire.TitleChanged{Title: "logs"})
	_ = scr.apply(wire.Bell{})
	if got := buf.String(); got != "\x1b]2;logs\a\a" {
		t.Fatalf("output = %q", got)
	}
}

func TestPaintReturnsExitCode(t *testing.T) {
	events := make(chan wire.Event, 3)
	code := 3
	events <- wire.TitleChanged{Title: "x"}
	events <- wire.Exited{Code: &code}
	close(events)

	var buf bytes.Buffer
	got, err := paint(newScreen(termenv.NewOutput(&buf, termenv.WithProfile(termenv.Ascii))), events)
	if err != nil || got != 3 {
		t.Fatalf("paint = %d, %v", got, err)
	}
}

func TestForwardInput(t *testing.T) {
	var got []byte
	forwardInput(strings.NewReader("typed"), func(p []byte) error {
		got = append(got, p...)
		return nil
	})
	if string(got) != "typed" {
		t.Fatalf("forwarded %q", got)
	}
}

func TestScreenDump(t *testing.T) {
	term := vt.New(8, 4)
	term.Write([]byte("ab\r\n\x1b[1mcd\x1b[0m"))
	frame := wire.NewFullFrame(term.Screen(), term.Cursor())

	var plain bytes.Buffer
	text, err := newScreen(termenv.NewOutput(&plain, termenv.WithProfile(termenv.Ascii))).dump(frame)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if text != "ab\ncd\n" {
		t.Fatalf("plain dump = %q", text)
	}

	var styled bytes.Buffer
	text, err = newScreen(termenv.NewOutput(&styled, termenv.WithProfile(termenv.TrueColor))).dump(frame)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(text, "\x1b[1mcd\x1b[0m") {
		t.Fatalf("styled dump = %q", text)
	}
}
