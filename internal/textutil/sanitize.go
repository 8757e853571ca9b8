package textutil

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidName reports a file or folder name that cannot be used as a
// single path segment.
var ErrInvalidName = errors.New("invalid name")

// maxNameBytes matches the common filesystem limit for one path segment.
const maxNameBytes = 255

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"\x00", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed. The result is NFC-normalized and trimmed.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(norm.NFC.String(name))
	if name == "" {
		return ""
	}
	return strings.TrimSpace(fileNameReplacer.Replace(name))
}

// NormalizeName validates a user-supplied single-segment name and returns
// its NFC form. Names are never silently rewritten: unsafe input is rejected
// with a suggestion from SanitizeFileName.
func NormalizeName(name string) (string, error) {
	normalized := strings.TrimSpace(norm.NFC.String(name))
	switch {
	case normalized == "":
		return "", errors.Join(ErrInvalidName, errors.New("name is empty"))
	case normalized == "." || normalized == "..":
		return "", errors.Join(ErrInvalidName, errors.New("name cannot be . or .."))
	case len(normalized) > maxNameBytes:
		return "", errors.Join(ErrInvalidName, errors.New("name is longer than 255 bytes"))
	}
	if clean := SanitizeFileName(normalized); clean != normalized {
		if clean == "" {
			return "", errors.Join(ErrInvalidName, errors.New("name contains only unsafe characters"))
		}
		return "", errors.Join(ErrInvalidName, errors.New("name contains unsafe characters; try "+clean))
	}
	return normalized, nil
}
