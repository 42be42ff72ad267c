package pdftext

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildPDF writes a minimal PDF with one Helvetica text run per page.
func buildPDF(t *testing.T, pages ...string) []byte {
	t.Helper()

	var objects []string
	kids := make([]string, 0, len(pages))
	for i := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+2*i))
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	)
	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
				"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtractStudentName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{"simple", "Name of the Student: ALICE SMITH", "ALICE SMITH", true},
		{"collapses whitespace", "Name of the Student:   JOHN \t  \n DOE", "JOHN DOE", true},
		{"case insensitive label", "name OF the student:bob", "bob", true},
		{"stops at digits", "Name of the Student: CAROL KING1DS24CS001", "CAROL KING", true},
		{"missing label", "Student Name: ALICE", "", false},
		{"empty capture", "Name of the Student: 12345", "", false},
		{"blank", "", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractStudentName(tc.text)
			require.Equal(t, tc.wantOK, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "A B C", NormalizeName("  A   B\n\nC  "))
	require.Equal(t, "", NormalizeName(" \t "))
}

func TestExtractTextRejectsGarbage(t *testing.T) {
	t.Parallel()

	e := New()
	_, err := e.ExtractText(nil)
	require.ErrorIs(t, err, ErrEmptyDocument)

	_, err = e.ExtractText([]byte("<html>not a pdf</html>"))
	require.Error(t, err)

	_, err = e.ExtractText([]byte("%PDF-1.4\n%%EOF garbage"))
	require.Error(t, err)
}

func TestExtractTextFindsStudentName(t *testing.T) {
	t.Parallel()

	text, err := New().ExtractText(buildPDF(t, "Name of the Student: ALICE SMITH"))
	require.NoError(t, err)
	require.Equal(t, "Name of the Student: ALICE SMITH", text)

	name, ok := ExtractStudentName(text)
	require.True(t, ok)
	require.Equal(t, "ALICE SMITH", name)
}

func TestExtractTextJoinsPagesWithoutSeparator(t *testing.T) {
	t.Parallel()

	text, err := New().ExtractText(buildPDF(t, "Name of the Student: BOB LEE", "1DS24CS001 SEM 1"))
	require.NoError(t, err)
	require.Equal(t, "Name of the Student: BOB LEE1DS24CS001 SEM 1", text)

	name, ok := ExtractStudentName(text)
	require.True(t, ok)
	require.Equal(t, "BOB LEE", name)
}
