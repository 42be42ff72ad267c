// Package usn builds and inspects the university seat numbers probed by the scraper.
package usn

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultPrefix is the college/region code every generated USN starts with.
const DefaultPrefix = "1DS"

// SuffixLen is the number of trailing characters used in artifact filenames.
const SuffixLen = 5

var (
	// ErrInvalidYear is returned when a year is not exactly two digits.
	ErrInvalidYear = errors.New("invalid year format, use two digits such as '23' for 2023")
	// ErrInvalidBranch is returned for branch codes that are not two letters.
	ErrInvalidBranch = errors.New("invalid branch code, use two letters such as 'CS'")
)

// KnownBranches lists the branch codes offered by the results portal.
var KnownBranches = []string{
	"AE", "AI", "AU", "BT", "CB", "CD", "CG", "CH", "CS", "CV",
	"CY", "EC", "EE", "EI", "ET", "IC", "IS", "MD", "ME", "RI",
}

// ID is a parsed USN.
type ID struct {
	Prefix string
	Year   string
	Branch string
	Number int
}

// String renders the canonical USN form.
func (id ID) String() string {
	return Generate(id.Prefix, id.Year, id.Branch, id.Number)
}

// Generate returns prefix + year + BRANCH + zero-padded(number, 3).
func Generate(prefix, year, branch string, number int) string {
	return fmt.Sprintf("%s%s%s%03d", prefix, year, strings.ToUpper(branch), number)
}

// ValidateYear checks the two-digit year format.
func ValidateYear(year string) error {
	if len(year) != 2 || !isDigit(year[0]) || !isDigit(year[1]) {
		return fmt.Errorf("%w: %q", ErrInvalidYear, year)
	}
	return nil
}

// NormalizeBranches upper-cases and trims codes, dropping blanks while keeping order.
// An empty result falls back to KnownBranches.
func NormalizeBranches(branches []string) ([]string, error) {
	out := make([]string, 0, len(branches))
	for _, b := range branches {
		code := strings.ToUpper(strings.TrimSpace(b))
		if code == "" {
			continue
		}
		if len(code) != 2 || !isLetter(code[0]) || !isLetter(code[1]) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidBranch, b)
		}
		out = append(out, code)
	}
	if len(out) == 0 {
		return append([]string(nil), KnownBranches...), nil
	}
	return out, nil
}

// Suffix returns the last SuffixLen characters of the USN.
func Suffix(id string) string {
	if len(id) <= SuffixLen {
		return id
	}
	return id[len(id)-SuffixLen:]
}

// BranchOfSuffix returns the branch code embedded at the start of a suffix.
func BranchOfSuffix(suffix string) string {
	if len(suffix) < 2 {
		return suffix
	}
	return suffix[:2]
}

// Parse splits a USN generated with prefix into its parts.
func Parse(raw, prefix string) (ID, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	prefix = strings.ToUpper(prefix)
	if !strings.HasPrefix(raw, prefix) {
		return ID{}, fmt.Errorf("usn %q does not start with %q", raw, prefix)
	}
	rest := raw[len(prefix):]
	if len(rest) < 5 {
		return ID{}, fmt.Errorf("usn %q is too short", raw)
	}
	year, branch, digits := rest[:2], rest[2:4], rest[4:]
	if err := ValidateYear(year); err != nil {
		return ID{}, err
	}
	if !isLetter(branch[0]) || !isLetter(branch[1]) {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidBranch, branch)
	}
	for i := 0; i < len(digits); i++ {
		if !isDigit(digits[i]) {
			return ID{}, fmt.Errorf("usn %q has invalid sequence %q", raw, digits)
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return ID{}, fmt.Errorf("usn %q has invalid sequence %q", raw, digits)
	}
	return ID{Prefix: prefix, Year: year, Branch: branch, Number: n}, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isLetter(c byte) bool { return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') }
