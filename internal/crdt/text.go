package crdt

import (
	"strings"

	"github.com/automerge/automerge-go"
)

// Text is a shared string. Lengths and positions count Unicode code
// points, not bytes.
type Text struct {
	doc  *Doc
	name string
}

// Name returns the wire name of the text.
func (x *Text) Name() string {
	return x.name
}

func (x *Text) text() *automerge.Text {
	v := x.doc.value(x.name)
	if v == nil || v.Kind() != automerge.KindText {
		return nil
	}
	return v.Text()
}

// Len returns the number of code points.
func (x *Text) Len() int {
	if t := x.text(); t != nil {
		return t.Len()
	}
	return 0
}

func (x *Text) String() string {
	t := x.text()
	if t == nil {
		return ""
	}
	s, err := t.Get()
	if err != nil {
		return ""
	}
	return s
}

// StringFrom returns the text after the first offset code points.
// Negative offsets return the whole text.
func (x *Text) StringFrom(offset int) string {
	s := x.String()
	if offset <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == offset {
			return s[i:]
		}
		n++
	}
	return ""
}

// Append adds s at the end. Invalid UTF-8 is replaced with U+FFFD.
func (x *Text) Append(s string) {
	if s == "" {
		return
	}
	s = strings.ToValidUTF8(s, "\uFFFD")
	x.doc.mutate(x.name, func() error {
		return x.doc.am.Path(x.name).Text().Append(s)
	})
}

// Delete removes length code points starting at index. Out of range parts
// are ignored.
func (x *Text) Delete(index, length int) {
	x.doc.mutate(x.name, func() error {
		t := x.text()
		if t == nil || index < 0 {
			return nil
		}
		n := min(length, t.Len()-index)
		if n <= 0 {
			return nil
		}
		return t.Delete(index, n)
	})
}

// Observe calls fn after every batch that may have changed the text.
func (x *Text) Observe(fn func(Event)) (cancel func()) {
	return x.doc.observe(x.name, fn)
}
