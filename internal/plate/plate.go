// Package plate classifies captured licence plates against the Mercosul
// formats.
package plate

import (
	"strings"
	"unicode"
)

type Country int

const (
	CountryUnknown Country = iota
	CountryBrazil
	CountryArgentina
	CountryParaguay
	CountryUruguay
)

func (c Country) String() string {
	switch c {
	case CountryBrazil:
		return "Brazil"
	case CountryArgentina:
		return "Argentina"
	case CountryParaguay:
		return "Paraguay"
	case CountryUruguay:
		return "Uruguay"
	default:
		return "Unknown"
	}
}

// Classifier maps a normalized plate to its country of issue.
type Classifier interface {
	Classify(plate string) (Country, bool)
}

// Layouts use L for a letter and N for a digit.
var layouts = []struct {
	country Country
	layout  string
}{
	{CountryBrazil, "LLLNLNN"},    // ABC1D23
	{CountryArgentina, "LLNNNLL"}, // AB123CD
	{CountryParaguay, "LLLLNNN"},  // ABCD123
	{CountryUruguay, "LLLNNNN"},   // ABC1234
}

// Mercosul recognises the Brazilian, Argentine, Paraguayan and Uruguayan
// formats, tried in that order.
type Mercosul struct{}

func (Mercosul) Classify(plate string) (Country, bool) {
	for _, l := range layouts {
		if matches(plate, l.layout) {
			return l.country, true
		}
	}
	return CountryUnknown, false
}

func matches(plate, layout string) bool {
	if len(plate) != len(layout) {
		return false
	}
	for i := 0; i < len(layout); i++ {
		c := plate[i]
		switch layout[i] {
		case 'L':
			if !isLetter(c) {
				return false
			}
		case 'N':
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// Normalize strips the whitespace some cameras embed in plate strings.
func Normalize(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}
