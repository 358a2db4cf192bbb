package printer

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	esc = 0x1B
	gs  = 0x1D
	lf  = 0x0A
)

const (
	alignLeft   = 0
	alignCenter = 1
)

const (
	sizeNormal = 0x00
	sizeDouble = 0x11
)

// DefaultWidth fits 58mm paper; 80mm printers take 48.
const DefaultWidth = 32

// Document builds an ESC/POS byte stream and a plain-text copy of the same
// lines for previews.
type Document struct {
	buf   bytes.Buffer
	text  strings.Builder
	width int
}

func NewDocument(width int) *Document {
	if width <= 0 {
		width = DefaultWidth
	}
	d := &Document{width: width}
	d.buf.Write([]byte{esc, '@'})
	return d
}

func (d *Document) align(mode byte) *Document {
	d.buf.Write([]byte{esc, 'a', mode})
	return d
}

func (d *Document) bold(on bool) *Document {
	var b byte
	if on {
		b = 1
	}
	d.buf.Write([]byte{esc, 'E', b})
	return d
}

func (d *Document) size(s byte) *Document {
	d.buf.Write([]byte{gs, '!', s})
	return d
}

func (d *Document) line(s string) *Document {
	d.buf.WriteString(s)
	d.buf.WriteByte(lf)
	d.text.WriteString(s)
	d.text.WriteByte('\n')
	return d
}

func (d *Document) separator(char string) *Document {
	return d.line(strings.Repeat(char, d.width))
}

// pair prints key on the left and value flush right.
func (d *Document) pair(key, value string) *Document {
	spaces := d.width - utf8.RuneCountInString(key) - utf8.RuneCountInString(value)
	if spaces < 1 {
		spaces = 1
	}
	return d.line(key + strings.Repeat(" ", spaces) + value)
}

func (d *Document) feed(n int) *Document {
	for range n {
		d.buf.WriteByte(lf)
	}
	return d
}

func (d *Document) cut() *Document {
	d.buf.Write([]byte{gs, 'V', 0x01})
	return d
}

func (d *Document) Bytes() []byte {
	return d.buf.Bytes()
}

func (d *Document) Preview() string {
	return d.text.String()
}

func (d *Document) heading(s string) *Document {
	return d.align(alignCenter).bold(true).size(sizeDouble).line(s).size(sizeNormal).bold(false).align(alignLeft)
}

func (d *Document) labelled(label, value string) *Document {
	if strings.TrimSpace(value) == "" {
		return d
	}
	return d.line(fmt.Sprintf("%s: %s", label, value))
}
