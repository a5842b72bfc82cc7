package nfc

import (
	"context"
	"slices"
)

// ReadStrategy reads the raw NDEF message bytes of a connected tag.
type ReadStrategy func(ctx context.Context, t Transceiver, h *TagHandle) ([]byte, error)

// DispatchTable maps a tag technology to its read strategy. A technology
// without an entry is unsupported.
type DispatchTable map[Technology]ReadStrategy

// DefaultDispatchTable maps each technology to its NFC Forum tag type
// reader. TechUnknown has no entry.
func DefaultDispatchTable() DispatchTable {
	return DispatchTable{
		TechMiFare:   ReadType2,
		TechISO7816:  ReadType4,
		TechFeliCa:   ReadType3,
		TechISO15693: ReadType5,
	}
}

// Lookup returns the strategy for tech.
func (d DispatchTable) Lookup(tech Technology) (ReadStrategy, bool) {
	s, ok := d[tech]
	return s, ok && s != nil
}

// Restrict returns a copy of d holding only the listed technologies.
func (d DispatchTable) Restrict(techs ...Technology) DispatchTable {
	out := make(DispatchTable, len(techs))
	for _, t := range techs {
		if s, ok := d[t]; ok {
			out[t] = s
		}
	}
	return out
}

// Technologies returns the supported technologies in ascending order.
func (d DispatchTable) Technologies() []Technology {
	techs := make([]Technology, 0, len(d))
	for t := range d {
		techs = append(techs, t)
	}
	slices.Sort(techs)
	return techs
}
