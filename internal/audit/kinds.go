package audit

import "strings"

// Kind is one classification tag. The declaration order is the display
// order used in summaries.
type Kind uint8

const (
	Deref Kind = iota
	StaticMutAccess
	Ffi
	UnsafeCall
	InlineAsm
	Transmute
	TransmuteRefToMut
	CastConstToMut

	numKinds
)

var kindLabels = [numKinds]string{
	Deref:             "deref",
	StaticMutAccess:   "static mut",
	Ffi:               "ffi",
	UnsafeCall:        "unsafe call",
	InlineAsm:         "asm",
	Transmute:         "transmute",
	TransmuteRefToMut: "transmute & to &mut",
	CastConstToMut:    "cast *const to *mut",
}

var kindIDs = [numKinds]string{
	Deref:             "deref",
	StaticMutAccess:   "static-mut",
	Ffi:               "ffi",
	UnsafeCall:        "unsafe-call",
	InlineAsm:         "asm",
	Transmute:         "transmute",
	TransmuteRefToMut: "transmute-ref-to-mut",
	CastConstToMut:    "cast-const-to-mut",
}

// String returns the human-readable label used in text summaries.
func (k Kind) String() string {
	if k >= numKinds {
		return "unknown"
	}
	return kindLabels[k]
}

// ID returns a stable machine identifier for k, used as a JSON value and as
// the SARIF rule id.
func (k Kind) ID() string {
	if k >= numKinds {
		return "unknown"
	}
	return kindIDs[k]
}

// AllKinds returns every kind in display order.
func AllKinds() []Kind {
	out := make([]Kind, numKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// KindSet is a set of tags. The zero value is empty.
type KindSet uint16

// NewKindSet returns a set holding ks.
func NewKindSet(ks ...Kind) KindSet {
	var s KindSet
	for _, k := range ks {
		s = s.With(k)
	}
	return s
}

func (s KindSet) Has(k Kind) bool        { return s&(1<<k) != 0 }
func (s KindSet) With(k Kind) KindSet    { return s | 1<<k }
func (s KindSet) Without(k Kind) KindSet { return s &^ (1 << k) }
func (s KindSet) Empty() bool            { return s == 0 }

// Kinds returns the members of s in display order.
func (s KindSet) Kinds() []Kind {
	var out []Kind
	for k := Kind(0); k < numKinds; k++ {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (s KindSet) String() string {
	var labels []string
	for _, k := range s.Kinds() {
		labels = append(labels, k.String())
	}
	return strings.Join(labels, ", ")
}
