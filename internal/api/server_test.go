package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/usn-result-scraper/internal/artifact"
	"github.com/JakeFAU/usn-result-scraper/internal/artifact/local"
	"github.com/JakeFAU/usn-result-scraper/internal/job"
	"github.com/JakeFAU/usn-result-scraper/internal/portal"
	"github.com/JakeFAU/usn-result-scraper/internal/usn"
)

type fakeJobs struct {
	mu        sync.Mutex
	status    job.Status
	startErr  error
	cancelErr error
	fetchPath string
	fetchErr  error
	artifacts []artifact.Artifact
	listErr   error
	started   []string
	fetched   []string
	panicOn   string
}

func (f *fakeJobs) StartJob(year string, branches []string) (job.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == "start" {
		panic("boom")
	}
	if f.startErr != nil {
		return job.Status{}, f.startErr
	}
	f.started = append(f.started, fmt.Sprintf("%s:%v", year, branches))
	f.status = job.Status{JobID: "job-1", Running: true, Message: "Starting scraping for year 20" + year + "..."}
	return f.status, nil
}

func (f *fakeJobs) Cancel() error {
	return f.cancelErr
}

func (f *fakeJobs) FetchOne(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, id)
	return f.fetchPath, f.fetchErr
}

func (f *fakeJobs) GetStatus() job.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeJobs) ListArtifacts(context.Context) ([]artifact.Artifact, error) {
	return f.artifacts, f.listErr
}

func serve(t *testing.T, jobs Jobs, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	NewServer(jobs, zap.NewNop()).Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestServer_RootAndProbes(t *testing.T) {
	t.Parallel()

	jobs := &fakeJobs{}
	rec := serve(t, jobs, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "API is running")
	require.NotEmpty(t, rec.Header().Get("Content-Type"))

	require.Equal(t, http.StatusOK, serve(t, jobs, http.MethodGet, "/healthz", nil).Code)
	require.Equal(t, http.StatusOK, serve(t, jobs, http.MethodGet, "/readyz", nil).Code)

	rec = serve(t, jobs, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_Status(t *testing.T) {
	t.Parallel()

	jobs := &fakeJobs{status: job.Status{JobID: "abc", Running: true, Processed: 4, Message: "Checking 1DS24CS005..."}}
	rec := serve(t, jobs, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, true, body["is_running"])
	require.InDelta(t, 4.0, body["progress"], 1e-9)
	require.InDelta(t, 0.0, body["total"], 1e-9)
	require.Equal(t, "Checking 1DS24CS005...", body["message"])
	require.Equal(t, "abc", body["job_id"])
}

func TestServer_StartScrape(t *testing.T) {
	t.Parallel()

	jobs := &fakeJobs{}
	rec := serve(t, jobs, http.MethodPost, "/scrape", []byte(`{"year":"24","branches":["CS","IS"]}`))
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "Scraping process started in the background.", body["message"])
	require.Equal(t, "job-1", body["job_id"])
	require.Equal(t, []string{"24:[CS IS]"}, jobs.started)
}

func TestServer_StartScrapeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		err  error
		code int
		want string
	}{
		{"invalid json", `{bad`, nil, http.StatusBadRequest, "invalid JSON"},
		{"running", `{"year":"24"}`, job.ErrJobRunning, http.StatusBadRequest, "Scraping is already in progress."},
		{"bad year", `{"year":"2024"}`, usn.ErrInvalidYear, http.StatusUnprocessableEntity, "2-digit"},
		{"bad branch", `{"year":"24","branches":["C1"]}`, usn.ErrInvalidBranch, http.StatusUnprocessableEntity, "branch"},
		{"other", `{"year":"24"}`, errors.New("id source exhausted"), http.StatusInternalServerError, "id source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(t, &fakeJobs{startErr: tt.err}, http.MethodPost, "/scrape", []byte(tt.body))
			require.Equal(t, tt.code, rec.Code)
			require.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestServer_Cancel(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusOK, serve(t, &fakeJobs{}, http.MethodPost, "/scrape/cancel", nil).Code)
	require.Equal(t, http.StatusConflict, serve(t, &fakeJobs{cancelErr: job.ErrNoJob}, http.MethodPost, "/scrape/cancel", nil).Code)
}

func TestServer_ScrapeSingle(t *testing.T) {
	t.Parallel()

	t.Run("QueryParam", func(t *testing.T) {
		jobs := &fakeJobs{fetchPath: "downloads/Results_PDF_2024/CS/ALICE_CS001.pdf"}
		rec := serve(t, jobs, http.MethodPost, "/scrape-single?usn=1DS24CS001", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		require.Equal(t, "success", body["status"])
		require.Equal(t, "1DS24CS001", body["usn"])
		require.Equal(t, jobs.fetchPath, body["file_path"])
	})
	t.Run("JSONBody", func(t *testing.T) {
		jobs := &fakeJobs{fetchPath: "p"}
		rec := serve(t, jobs, http.MethodPost, "/scrape-single", []byte(`{"usn":"1DS24IS010"}`))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, []string{"1DS24IS010"}, jobs.fetched)
	})

	tests := []struct {
		name string
		err  error
		code int
	}{
		{"running", job.ErrJobRunning, http.StatusBadRequest},
		{"invalid", fmt.Errorf("%w: bad", portal.ErrInvalidUSN), http.StatusBadRequest},
		{"not found", fmt.Errorf("%w for USN: 1DS24CS001", job.ErrNotFound), http.StatusNotFound},
		{"save error", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, &fakeJobs{fetchErr: tt.err}, http.MethodPost, "/scrape-single?usn=1DS24CS001", nil)
			require.Equal(t, tt.code, rec.Code)
		})
	}

	t.Run("Missing", func(t *testing.T) {
		jobs := &fakeJobs{}
		rec := serve(t, jobs, http.MethodPost, "/scrape-single", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Empty(t, jobs.fetched)
	})
}

func TestServer_ResultsAndBranches(t *testing.T) {
	t.Parallel()

	store, err := local.New(afero.NewMemMapFs(), local.Config{RootDir: "downloads"}, nil)
	require.NoError(t, err)
	_, err = store.Save(context.Background(), portal.Result{
		USN: "1DS24CS001", Name: "ALICE", Branch: "CS", Year: "24", PDF: make([]byte, 2048),
	})
	require.NoError(t, err)
	manager := job.NewManager(nil, nil, store, nil)

	rec := serve(t, manager, http.MethodGet, "/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	require.Equal(t, "ALICE_CS001.pdf", list[0]["filename"])
	require.Equal(t, "ALICE", list[0]["student_name"])
	require.Equal(t, "CS", list[0]["branch"])
	require.InDelta(t, 2.0, list[0]["size_kb"], 1e-9)

	rec = serve(t, &fakeJobs{listErr: errors.New("io")}, http.MethodGet, "/results", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(t, manager, http.MethodGet, "/branches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"CS"`)
}

func TestServer_EmptyResultsIsArray(t *testing.T) {
	t.Parallel()

	store, err := local.New(afero.NewMemMapFs(), local.Config{RootDir: "downloads"}, nil)
	require.NoError(t, err)
	rec := serve(t, job.NewManager(nil, nil, store, nil), http.MethodGet, "/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestServer_RecoversPanics(t *testing.T) {
	t.Parallel()

	rec := serve(t, &fakeJobs{panicOn: "start"}, http.MethodPost, "/scrape", []byte(`{"year":"24"}`))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}
