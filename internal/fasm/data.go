package fasm

import (
	"strconv"
	"strings"

	"fasmgen/internal/x86"
)

// DataItem is one comma-separated element of a data directive: either a
// number or a run of text.
type DataItem struct {
	Text   string
	Value  x86.Int128
	IsText bool
}

// Num builds a numeric data item.
func Num[T x86.Integer](v T) DataItem {
	return DataItem{Value: x86.Int128Of(v)}
}

// NumOf builds a numeric data item from a widened value.
func NumOf(v x86.Int128) DataItem {
	return DataItem{Value: v}
}

// Text builds a text data item. Only byte directives accept text.
func Text(s string) DataItem {
	return DataItem{Text: s, IsText: true}
}

func defineKeyword(size x86.RegSize) string {
	switch size {
	case x86.Byte:
		return "db"
	case x86.Word:
		return "dw"
	case x86.DWord:
		return "dd"
	case x86.QWord:
		return "dq"
	}
	x86.Violate("Data", "invalid data size %d", uint8(size))
	return ""
}

func reserveKeyword(size x86.RegSize) string {
	switch size {
	case x86.Byte:
		return "rb"
	case x86.Word:
		return "rw"
	case x86.DWord:
		return "rd"
	case x86.QWord:
		return "rq"
	}
	x86.Violate("Reserve", "invalid data size %d", uint8(size))
	return ""
}

// Data writes `name db|dw|dd|dq item, item, ...`, defining the label.
func (w *Writer) Data(l x86.Label, size x86.RegSize, items ...DataItem) error {
	if len(items) == 0 {
		x86.Violate("Data", "data directive needs at least one item")
	}
	var b strings.Builder
	b.WriteString(indent + w.labels.Name(l) + " " + defineKeyword(size) + " ")
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		if !item.IsText {
			b.WriteString(item.Value.String())
			continue
		}
		if size != x86.Byte {
			x86.Violate("Data", "text is only allowed in byte data")
		}
		if item.Text == "" {
			x86.Violate("Data", "empty text item")
		}
		b.WriteString(quoteText(item.Text))
	}
	return w.writeLine("data", b.String())
}

// StringData writes a byte string. Printable characters are quoted, everything
// else (including the quote itself) is written as a decimal byte.
func (w *Writer) StringData(l x86.Label, s string) error {
	return w.Data(l, x86.Byte, Text(s))
}

// Reserve writes `name rb|rw|rd|rq count`, defining the label over count
// uninitialised elements.
func (w *Writer) Reserve(l x86.Label, size x86.RegSize, count uint32) error {
	if count == 0 {
		x86.Violate("Reserve", "reserve count must be positive")
	}
	line := indent + w.labels.Name(l) + " " + reserveKeyword(size) + " " + strconv.FormatUint(uint64(count), 10)
	return w.writeLine("reserve", line)
}

// quoteText renders s as a FASM byte list: runs of printable characters in
// single quotes, other bytes as numbers.
func quoteText(s string) string {
	var parts []string
	var run strings.Builder
	flush := func() {
		if run.Len() > 0 {
			parts = append(parts, "'"+run.String()+"'")
			run.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c < 0x7f && c != '\'' {
			run.WriteByte(c)
			continue
		}
		flush()
		parts = append(parts, strconv.Itoa(int(c)))
	}
	flush()
	return strings.Join(parts, ", ")
}
