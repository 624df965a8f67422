// Package validation checks user-supplied names before they reach lookups or
// file paths.
package validation

import (
	"errors"
	"strings"
	"unicode"
)

// MaxCropNameLen bounds crop names in runes.
const MaxCropNameLen = 64

// ErrCropEmpty is returned when the crop is empty or whitespace-only after trim.
var ErrCropEmpty = errors.New("crop is required")

// ErrCropTooLong is returned when the crop exceeds MaxCropNameLen runes.
var ErrCropTooLong = errors.New("crop name too long")

// ErrCropInvalidChars is returned when the crop contains disallowed characters.
var ErrCropInvalidChars = errors.New("crop name contains invalid characters")

// CropName trims input and restricts it to letters and combining marks
// (Unicode), digits, space,
// hyphen, underscore, comma and parentheses. Path separators and dots are
// rejected, so the result is always a safe file name stem.
func CropName(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrCropEmpty
	}
	if len(r) > MaxCropNameLen {
		return "", ErrCropTooLong
	}
	for _, c := range r {
		if !isAllowedCropRune(c) {
			return "", ErrCropInvalidChars
		}
	}
	return s, nil
}

func isAllowedCropRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', ',', '(', ')':
		return true
	}
	return false
}
