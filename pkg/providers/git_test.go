package providers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newLocalOriginRepo creates a plain (non-bare) git repository with one
// committed file, suitable as a clone source for GitProvider tests. go-git
// clones a local path directly without needing a real remote.
func newLocalOriginRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	readmePath := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(readmePath, []byte("quelle extension store\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README.md")
	require.NoError(t, err)

	_, err = wt.Commit("initial commit", &gogit.CommitOptions{
		Author: testSignature(),
	})
	require.NoError(t, err)

	return dir
}

func testSignature() *object.Signature {
	return &object.Signature{Name: "test", Email: "test@localhost", When: time.Now()}
}

func TestGitProviderClonesAndListsExtensions(t *testing.T) {
	origin := newLocalOriginRepo(t)
	cacheDir := t.TempDir()

	p, err := NewGitProvider(context.Background(), GitProviderConfig{
		URL:           origin,
		CacheDir:      cacheDir,
		FetchInterval: time.Hour,
	})
	require.NoError(t, err)

	ids, err := p.ListExtensions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestGitProviderPublishCommitsToLocalClone(t *testing.T) {
	origin := newLocalOriginRepo(t)
	cacheDir := t.TempDir()

	p, err := NewGitProvider(context.Background(), GitProviderConfig{
		URL:           origin,
		CacheDir:      cacheDir,
		FetchInterval: time.Hour,
		Write:         WriteConfig{AuthorName: "tester", AuthorEmail: "tester@localhost"},
	})
	require.NoError(t, err)

	pkg := testPackage(t, "example-source", "1.0.0")
	require.NoError(t, p.Publish(context.Background(), pkg))

	got, err := p.GetExtensionPackage(context.Background(), "example-source", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", got.Manifest.Version)
}

func TestGitProviderPublishRefusesDirtyWorktree(t *testing.T) {
	origin := newLocalOriginRepo(t)
	cacheDir := t.TempDir()

	p, err := NewGitProvider(context.Background(), GitProviderConfig{
		URL:           origin,
		CacheDir:      cacheDir,
		FetchInterval: time.Hour,
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "dirty.txt"), []byte("uncommitted"), 0o644))

	err = p.Publish(context.Background(), testPackage(t, "example-source", "1.0.0"))
	require.Error(t, err)
}
