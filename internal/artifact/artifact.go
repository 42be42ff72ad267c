// Package artifact names, stores and lists the result sheets saved by the scraper.
//
// An artifact lives at Results_PDF_20{yy}/{BRANCH}/{name}_{suffix}.pdf relative to the
// store root, where suffix is the last five characters of the USN. The file itself is
// the only record; stores never overwrite an existing artifact.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/JakeFAU/usn-result-scraper/internal/portal"
	"github.com/JakeFAU/usn-result-scraper/internal/usn"
)

const (
	yearFolderPrefix = "Results_PDF_20"
	extension        = ".pdf"
)

// ErrIncompleteResult is returned when a result lacks a field needed for its path.
var ErrIncompleteResult = errors.New("incomplete fetch result")

var illegalChars = regexp.MustCompile(`[<>:"/\\|?*]+`)

// Store persists fetched sheets with write-once-if-absent semantics.
type Store interface {
	Save(ctx context.Context, res portal.Result) (Saved, error)
	List(ctx context.Context) ([]Artifact, error)
}

// Saved reports where an artifact lives and whether this call created it.
type Saved struct {
	Path    string
	Created bool
}

// Artifact describes one stored result sheet.
type Artifact struct {
	Filename    string    `json:"filename"`
	Path        string    `json:"path"`
	StudentName string    `json:"student_name"`
	USNSuffix   string    `json:"usn_suffix"`
	Branch      string    `json:"branch"`
	Year        string    `json:"year,omitempty"`
	SizeKB      float64   `json:"size_kb"`
	Modified    time.Time `json:"modified"`
}

// SanitizeName strips characters that are illegal in file names.
func SanitizeName(name string) string {
	return strings.TrimSpace(illegalChars.ReplaceAllString(name, ""))
}

// RelativePath returns the slash-separated location of res below a store root.
func RelativePath(res portal.Result) (string, error) {
	if res.USN == "" || res.Name == "" || res.Branch == "" || res.Year == "" || len(res.PDF) == 0 {
		return "", fmt.Errorf("%w: usn=%q", ErrIncompleteResult, res.USN)
	}
	filename := SanitizeName(res.Name) + "_" + usn.Suffix(res.USN) + extension
	return path.Join(yearFolderPrefix+res.Year, strings.ToUpper(res.Branch), filename), nil
}

// Describe parses a slash-separated path relative to the store root. The bool is
// false for non-PDF files and names that do not split into {name}_{suffix}.
func Describe(rel string, size int64, modified time.Time) (Artifact, bool) {
	filename := path.Base(rel)
	if !strings.HasSuffix(strings.ToLower(filename), extension) {
		return Artifact{}, false
	}
	stem := filename[:len(filename)-len(extension)]
	idx := strings.LastIndex(stem, "_")
	if idx <= 0 || idx == len(stem)-1 {
		return Artifact{}, false
	}
	suffix := stem[idx+1:]
	a := Artifact{
		Filename:    filename,
		Path:        rel,
		StudentName: stem[:idx],
		USNSuffix:   suffix,
		Branch:      usn.BranchOfSuffix(suffix),
		SizeKB:      math.Round(float64(size)/1024*100) / 100,
		Modified:    modified,
	}
	if yearDir := path.Base(path.Dir(path.Dir(rel))); strings.HasPrefix(yearDir, yearFolderPrefix) {
		a.Year = strings.TrimPrefix(yearDir, yearFolderPrefix)
	}
	return a, true
}

// Checksum returns the hex SHA-256 digest of a sheet's bytes.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
