package local_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/usn-result-scraper/internal/artifact"
	"github.com/JakeFAU/usn-result-scraper/internal/artifact/local"
	"github.com/JakeFAU/usn-result-scraper/internal/portal"
)

func sampleResult() portal.Result {
	return portal.Result{
		USN:    "1DS24CS005",
		Name:   "ALICE SMITH",
		Branch: "CS",
		Year:   "24",
		PDF:    []byte("%PDF-original"),
	}
}

func newMemStore(t *testing.T) (*local.Store, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	store, err := local.New(fsys, local.Config{RootDir: "downloads"}, zap.NewNop())
	require.NoError(t, err)
	return store, fsys
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("MissingRoot", func(t *testing.T) {
		_, err := local.New(afero.NewMemMapFs(), local.Config{}, nil)
		assert.Error(t, err)
	})
	t.Run("RootIsFile", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fsys, "downloads", []byte("x"), 0o600))
		_, err := local.New(fsys, local.Config{RootDir: "downloads"}, nil)
		assert.Error(t, err)
	})
	t.Run("CreatesRoot", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		store, err := local.New(fsys, local.Config{RootDir: "out/results"}, nil)
		require.NoError(t, err)
		require.Equal(t, "out/results", store.Root())
		ok, err := afero.DirExists(fsys, "out/results")
		require.NoError(t, err)
		require.True(t, ok)
	})
}

func TestSaveWritesDeterministicPath(t *testing.T) {
	t.Parallel()

	store, fsys := newMemStore(t)
	saved, err := store.Save(context.Background(), sampleResult())
	require.NoError(t, err)
	require.True(t, saved.Created)
	require.Equal(t, filepath.Join("downloads", "Results_PDF_2024", "CS", "ALICE SMITH_CS005.pdf"), saved.Path)

	data, err := afero.ReadFile(fsys, saved.Path)
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-original"), data)
}

func TestSaveIsIdempotentAndPreservesBytes(t *testing.T) {
	t.Parallel()

	store, fsys := newMemStore(t)
	first, err := store.Save(context.Background(), sampleResult())
	require.NoError(t, err)

	// Sentinel: overwrite on disk, then save again with different bytes.
	require.NoError(t, afero.WriteFile(fsys, first.Path, []byte("sentinel"), 0o600))
	again := sampleResult()
	again.PDF = []byte("%PDF-newer")
	second, err := store.Save(context.Background(), again)
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.Path, second.Path)

	data, err := afero.ReadFile(fsys, first.Path)
	require.NoError(t, err)
	require.Equal(t, []byte("sentinel"), data)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestSaveConcurrentOverlapProducesOneFile(t *testing.T) {
	t.Parallel()

	store, _ := newMemStore(t)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		paths   = map[string]struct{}{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			saved, err := store.Save(context.Background(), sampleResult())
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			paths[saved.Path] = struct{}{}
			if saved.Created {
				created++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, created)
	require.Len(t, paths, 1)
}

func TestSaveRejectsIncompleteResult(t *testing.T) {
	t.Parallel()

	store, _ := newMemStore(t)
	res := sampleResult()
	res.Name = ""
	_, err := store.Save(context.Background(), res)
	require.ErrorIs(t, err, artifact.ErrIncompleteResult)
}

func TestSaveHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	store, _ := newMemStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Save(ctx, sampleResult())
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewOnReadOnlyFilesystem(t *testing.T) {
	t.Parallel()

	_, err := local.New(afero.NewReadOnlyFs(afero.NewMemMapFs()), local.Config{RootDir: "downloads"}, nil)
	require.Error(t, err)
}

func TestListDerivesBranchFromSavedSuffix(t *testing.T) {
	t.Parallel()

	store, fsys := newMemStore(t)
	results := []portal.Result{
		sampleResult(),
		{USN: "1DS24IS120", Name: "BOB", Branch: "IS", Year: "24", PDF: []byte("b")},
	}
	for _, res := range results {
		_, err := store.Save(context.Background(), res)
		require.NoError(t, err)
	}
	require.NoError(t, afero.WriteFile(fsys, "downloads/Results_PDF_2024/CS/readme.txt", []byte("x"), 0o600))
	require.NoError(t, afero.WriteFile(fsys, "downloads/Results_PDF_2024/CS/garbage.pdf", []byte("x"), 0o600))
	require.NoError(t, fsys.MkdirAll("downloads/20-folder/CS", 0o750))
	require.NoError(t, afero.WriteFile(fsys, "downloads/20-folder/CS/Alice_12345.pdf", []byte("x"), 0o600))

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)

	byName := map[string]artifact.Artifact{}
	for _, a := range list {
		byName[a.StudentName] = a
	}
	require.Equal(t, "12", byName["Alice"].Branch)
	for _, res := range results {
		a, ok := byName[res.Name]
		require.True(t, ok, res.Name)
		require.Equal(t, res.Branch, a.Branch)
		require.Equal(t, res.Year, a.Year)
	}
}

func TestListMissingRootIsEmpty(t *testing.T) {
	t.Parallel()

	store, fsys := newMemStore(t)
	require.NoError(t, fsys.RemoveAll("downloads"))
	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestOsFilesystemRoundTrip(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := local.New(afero.NewOsFs(), local.Config{RootDir: root}, nil)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		res := sampleResult()
		res.USN = fmt.Sprintf("1DS24CS%03d", i)
		_, err := store.Save(context.Background(), res)
		require.NoError(t, err)
	}
	entries, err := os.ReadDir(filepath.Join(root, "Results_PDF_2024", "CS"))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "ALICE SMITH_CS001.pdf", list[0].Filename)
}
