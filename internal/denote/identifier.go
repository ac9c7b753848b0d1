// Package denote implements the Denote naming scheme: timestamp identifiers
// and the <id>--<slug>__<tags>.md filename codec.
package denote

import (
	"fmt"
	"time"
)

// IdentifierLayout is the time layout of a Denote identifier.
const IdentifierLayout = "20060102T150405"

// Identifier is a fixed-width creation timestamp (YYYYMMDDTHHMMSS).
// Lexicographic order equals chronological order.
type Identifier string

// ParseIdentifier checks the timestamp shape of s and returns it as an Identifier.
func ParseIdentifier(s string) (Identifier, error) {
	id := Identifier(s)
	if !id.Valid() {
		return "", fmt.Errorf("%w: identifier %q", ErrMalformedFilename, s)
	}
	return id, nil
}

// IdentifierFromTime formats t as an Identifier.
func IdentifierFromTime(t time.Time) Identifier {
	return Identifier(t.Format(IdentifierLayout))
}

// Valid reports whether id has the shape 8 digits, 'T', 6 digits.
func (id Identifier) Valid() bool {
	if len(id) != len(IdentifierLayout) {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if i == 8 {
			if c != 'T' {
				return false
			}
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Time interprets id as a UTC timestamp. Shape-valid identifiers may still
// fail here (e.g. month 13).
func (id Identifier) Time() (time.Time, error) {
	return time.Parse(IdentifierLayout, string(id))
}

// Add returns id shifted by the given number of seconds.
func (id Identifier) Add(seconds int) (Identifier, error) {
	t, err := id.Time()
	if err != nil {
		return "", err
	}
	return IdentifierFromTime(t.Add(time.Duration(seconds) * time.Second)), nil
}

func (id Identifier) String() string { return string(id) }
