package ecs

import (
	"iter"
	"math/bits"
	"strings"
)

// MaxComps is the maximum number of component types a Def can register.
const MaxComps = 256

const maskWords = MaxComps / 64

// CompMask is a set of component ids. It is comparable and can be used as a map key.
type CompMask [maskWords]uint64

// MaskOf returns a mask containing the given components.
func MaskOf(comps ...CompRef) CompMask {
	var m CompMask
	for _, c := range comps {
		m.Set(c.Id())
	}
	return m
}

func (m *CompMask) Set(id CompId) {
	m[id>>6] |= 1 << (id & 63)
}

func (m *CompMask) Clear(id CompId) {
	m[id>>6] &^= 1 << (id & 63)
}

func (m CompMask) Has(id CompId) bool {
	return m[id>>6]&(1<<(id&63)) != 0
}

func (m CompMask) Union(o CompMask) CompMask {
	for i := range m {
		m[i] |= o[i]
	}
	return m
}

func (m CompMask) Intersect(o CompMask) CompMask {
	for i := range m {
		m[i] &= o[i]
	}
	return m
}

// Without returns the components of m that are not in o.
func (m CompMask) Without(o CompMask) CompMask {
	for i := range m {
		m[i] &^= o[i]
	}
	return m
}

// ContainsAll reports whether every component of o is in m.
func (m CompMask) ContainsAll(o CompMask) bool {
	for i := range m {
		if o[i]&^m[i] != 0 {
			return false
		}
	}
	return true
}

// Overlaps reports whether m and o share any component.
func (m CompMask) Overlaps(o CompMask) bool {
	for i := range m {
		if m[i]&o[i] != 0 {
			return true
		}
	}
	return false
}

func (m CompMask) IsEmpty() bool {
	return m == CompMask{}
}

func (m CompMask) Count() int {
	n := 0
	for _, w := range m {
		n += bits.OnesCount64(w)
	}
	return n
}

// index returns the number of components in m with a lower id than the given one, which is the
// position of that component in the ascending list of m's components.
func (m CompMask) index(id CompId) int {
	word := int(id >> 6)
	n := bits.OnesCount64(m[word] & (1<<(id&63) - 1))
	for i := range word {
		n += bits.OnesCount64(m[i])
	}
	return n
}

// All iterates over the components in ascending id order.
func (m CompMask) All() iter.Seq[CompId] {
	return func(yield func(CompId) bool) {
		for i, w := range m {
			for w != 0 {
				bit := bits.TrailingZeros64(w)
				w &= w - 1
				if !yield(CompId(i*64 + bit)) {
					return
				}
			}
		}
	}
}

// hash returns an FNV-1a hash of the mask words.
func (m CompMask) hash() uint64 {
	const (
		offset uint64 = 14695981039346656037
		prime  uint64 = 1099511628211
	)
	h := offset
	for _, w := range m {
		for shift := 0; shift < 64; shift += 8 {
			h ^= (w >> shift) & 0xff
			h *= prime
		}
	}
	return h
}

// format renders the mask with component names from the def.
func (m CompMask) format(d *Def) string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for id := range m.All() {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(d.CompName(id))
	}
	b.WriteByte('}')
	return b.String()
}
