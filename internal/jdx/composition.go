package jdx

import (
	"strconv"
	"strings"
)

// Element is an index into the fixed element table
type Element int

// The order of the elements matters: formula tokens are matched by
// substring, and the first element that matches wins.
const (
	Hydrogen Element = iota
	Carbon
	Oxygen
	Nitrogen
	Argon
	Deuterium
	NumElements
)

type elementInfo struct {
	symbol       string
	atomicNumber int
}

var elementTable = [NumElements]elementInfo{
	Hydrogen:  {"H", 1},
	Carbon:    {"C", 6},
	Oxygen:    {"O", 8},
	Nitrogen:  {"N", 7},
	Argon:     {"Ar", 18},
	Deuterium: {"D", 1},
}

// Symbol returns the chemical symbol of the element
func (e Element) Symbol() string {
	if e < 0 || e >= NumElements {
		return ""
	}
	return elementTable[e].symbol
}

// AtomicNumber returns the number of protons of the element
func (e Element) AtomicNumber() int {
	if e < 0 || e >= NumElements {
		return 0
	}
	return elementTable[e].atomicNumber
}

func (e Element) String() string { return e.Symbol() }

// Elements returns all supported elements in matching order
func Elements() []Element {
	el := make([]Element, NumElements)
	for i := range el {
		el[i] = Element(i)
	}
	return el
}

// Composition holds the number of atoms of each element in a molecule
type Composition [NumElements]int

// Count returns the number of atoms of element e
func (c Composition) Count(e Element) int {
	if e < 0 || e >= NumElements {
		return 0
	}
	return c[e]
}

// ProtonCount computes sum(count * atomic number)
func (c Composition) ProtonCount() int {
	z := 0
	for i, n := range c {
		z += n * elementTable[i].atomicNumber
	}
	return z
}

func (c Composition) String() string {
	var sb strings.Builder
	for i, n := range c {
		if n == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(elementTable[i].symbol)
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(n))
	}
	return sb.String()
}

// Analyze decodes a '_' separated formula like "C_O2" into atom counts
// and the total number of protons.
// Only the last character of a token is taken as multiplicity, so counts
// above 9 cannot be expressed. Tokens that match no element are ignored.
// A later token for the same element replaces the earlier count.
func Analyze(name string) (Composition, int) {
	var comp Composition
	for _, tok := range strings.Split(name, "_") {
		if tok == "" {
			continue
		}
		n := 1
		symbol := tok
		if last := tok[len(tok)-1]; last >= '0' && last <= '9' {
			n = int(last - '0')
			symbol = tok[:len(tok)-1]
		}
		for i, el := range elementTable {
			if strings.Contains(symbol, el.symbol) {
				comp[i] = n
				break
			}
		}
	}
	return comp, comp.ProtonCount()
}
