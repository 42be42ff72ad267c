package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageSummary(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Report Error", pageSummary([]byte("<html><head><title> Report\n Error </title></head></html>")))
	assert.Equal(t, "No record found", pageSummary([]byte("<html><body><h1>No record found</h1></body></html>")))
	assert.Equal(t, "plain text", pageSummary([]byte("<html><body>plain   text</body></html>")))
	assert.Empty(t, pageSummary(nil))
	assert.Empty(t, pageSummary([]byte("<html></html>")))

	long := pageSummary([]byte("<title>" + strings.Repeat("x", 500) + "</title>"))
	assert.Len(t, long, maxPageSummary)
}

func TestFetch_HTMLErrorPageReason(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><head><title>Invalid USN</title></head><body></body></html>"))
	}))
	t.Cleanup(srv.Close)

	out, err := newTestClient(t, srv.URL, 0).Fetch(context.Background(), "1DS24CS002")
	require.NoError(t, err)
	assert.Equal(t, KindNotFound, out.Kind)
	assert.Equal(t, "content type text/html; charset=utf-8: Invalid USN", out.Reason)
}
