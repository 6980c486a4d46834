package room

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const MaxNameLength = 30

var ErrInvalidName = errors.New("player name must be 1-30 printable characters")

// ValidateName trims and NFC-normalizes a display name so the same name typed
// on two keyboards compares equal.
func ValidateName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrInvalidName
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", ErrInvalidName
		}
	}
	return name, nil
}
