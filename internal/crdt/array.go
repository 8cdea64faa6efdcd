package crdt

import "github.com/automerge/automerge-go"

// Array is an ordered list. A push lands after every element the replica
// has already seen; concurrent pushes interleave the same way everywhere.
type Array struct {
	doc  *Doc
	name string
}

// Name returns the wire name of the array.
func (a *Array) Name() string {
	return a.name
}

func (a *Array) list() *automerge.List {
	v := a.doc.value(a.name)
	if v == nil || v.Kind() != automerge.KindList {
		return nil
	}
	return v.List()
}

// Len returns the number of live elements.
func (a *Array) Len() int {
	if l := a.list(); l != nil {
		return l.Len()
	}
	return 0
}

// ToArray returns the live elements in order.
func (a *Array) ToArray() []any {
	l := a.list()
	if l == nil {
		return []any{}
	}
	vals, err := l.Values()
	if err != nil {
		return []any{}
	}
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v.Interface()
	}
	return out
}

// Push appends values as one batch.
func (a *Array) Push(values ...any) {
	if len(values) == 0 {
		return
	}
	a.doc.mutate(a.name, func() error {
		l := a.doc.am.Path(a.name).List()
		for _, v := range values {
			if err := l.Append(prepare(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes length elements starting at index. Out of range parts
// are ignored.
func (a *Array) Delete(index, length int) {
	a.doc.mutate(a.name, func() error {
		l := a.list()
		if l == nil || index < 0 {
			return nil
		}
		for n := min(length, l.Len()-index); n > 0; n-- {
			if err := l.Delete(index); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteFunc removes every live element for which fn returns true and
// reports how many were removed. fn sees the decoded value.
func (a *Array) DeleteFunc(fn func(v any) bool) int {
	removed := 0
	a.doc.mutate(a.name, func() error {
		l := a.list()
		if l == nil {
			return nil
		}
		vals, err := l.Values()
		if err != nil {
			return err
		}
		for i := len(vals) - 1; i >= 0; i-- {
			if !fn(vals[i].Interface()) {
				continue
			}
			if err := l.Delete(i); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed
}

// Observe calls fn after every batch that may have changed the array.
func (a *Array) Observe(fn func(Event)) (cancel func()) {
	return a.doc.observe(a.name, fn)
}
