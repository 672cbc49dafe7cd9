package gitcli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidelab/stageground/repo"
	"github.com/guidelab/stageground/staging"
)

var testKey = staging.RepositoryKey{Owner: "who", Repo: "smart-anc", Branch: "main"}

// fakeRunner records invocations and returns canned responses keyed by the
// joined command line.
type fakeRunner struct {
	responses map[string]string
	failures  map[string]error
	calls     []string
}

func (f *fakeRunner) Run(_ context.Context, _, name string, args ...string) (string, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, line)
	if err, ok := f.failures[line]; ok {
		return "", err
	}
	return f.responses[line], nil
}

func newClient(t *testing.T, runner *fakeRunner) *Client {
	t.Helper()
	return New(t.TempDir(), nil).WithRunner(runner)
}

func TestValidatePath(t *testing.T) {
	assert.NoError(t, validatePath("input/anc.bpmn"))
	assert.Error(t, validatePath(""))
	assert.Error(t, validatePath("/etc/passwd"))
	assert.Error(t, validatePath("../outside.txt"))
	assert.Error(t, validatePath("input/../../outside.txt"))
}

func TestReadFile(t *testing.T) {
	t.Run("returns file bytes", func(t *testing.T) {
		runner := &fakeRunner{responses: map[string]string{
			"git show rev-1:input/anc.bpmn": "<definitions/>",
		}}
		client := newClient(t, runner)

		data, err := client.ReadFile(context.Background(), testKey, "input/anc.bpmn", "rev-1")
		require.NoError(t, err)
		assert.Equal(t, "<definitions/>", string(data))
	})

	t.Run("empty revision reads the branch head", func(t *testing.T) {
		runner := &fakeRunner{responses: map[string]string{
			"git show main:input/anc.bpmn": "<definitions/>",
		}}
		client := newClient(t, runner)

		_, err := client.ReadFile(context.Background(), testKey, "input/anc.bpmn", "")
		require.NoError(t, err)
	})

	t.Run("missing path maps to ErrNotFound", func(t *testing.T) {
		runner := &fakeRunner{failures: map[string]error{
			"git show rev-1:missing.dmn": errors.New("fatal: path 'missing.dmn' does not exist in 'rev-1'"),
		}}
		client := newClient(t, runner)

		_, err := client.ReadFile(context.Background(), testKey, "missing.dmn", "rev-1")
		assert.ErrorIs(t, err, repo.ErrNotFound)
	})

	t.Run("rejects traversal before running anything", func(t *testing.T) {
		runner := &fakeRunner{}
		client := newClient(t, runner)

		_, err := client.ReadFile(context.Background(), testKey, "../secrets", "rev-1")
		assert.Error(t, err)
		assert.Empty(t, runner.calls)
	})
}

func TestCurrentRevision(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"git ls-remote origin refs/heads/main": "abc123\trefs/heads/main\n",
	}}
	client := newClient(t, runner)

	rev, err := client.CurrentRevision(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, "abc123", rev)

	t.Run("missing branch", func(t *testing.T) {
		empty := &fakeRunner{responses: map[string]string{
			"git ls-remote origin refs/heads/gone": "",
		}}
		_, err := newClient(t, empty).CurrentRevision(context.Background(),
			staging.RepositoryKey{Owner: "who", Repo: "smart-anc", Branch: "gone"})
		assert.Error(t, err)
	})

	t.Run("falls back to gh when ls-remote fails", func(t *testing.T) {
		runner := &fakeRunner{
			failures: map[string]error{
				"git ls-remote origin refs/heads/main": errors.New("fatal: could not read from remote repository"),
			},
			responses: map[string]string{
				"gh api repos/who/smart-anc/branches/main --jq .commit.sha": "def456\n",
			},
		}
		rev, err := newClient(t, runner).CurrentRevision(context.Background(), testKey)
		require.NoError(t, err)
		assert.Equal(t, "def456", rev)
	})

	t.Run("reports the git error when gh also fails", func(t *testing.T) {
		runner := &fakeRunner{failures: map[string]error{
			"git ls-remote origin refs/heads/main":                      errors.New("fatal: could not read from remote repository"),
			"gh api repos/who/smart-anc/branches/main --jq .commit.sha": errors.New("gh: command not found"),
		}}
		_, err := newClient(t, runner).CurrentRevision(context.Background(), testKey)
		assert.ErrorContains(t, err, "could not read from remote")
	})
}

func TestListFiles(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"git ls-tree -r --name-only rev-1": "input/anc.bpmn\nREADME.md\ninput/decisions/anc.dt.dmn\n",
	}}
	client := newClient(t, runner)

	paths, err := client.ListFiles(context.Background(), testKey, "rev-1", "**/*.{bpmn,dmn}")
	require.NoError(t, err)
	assert.Equal(t, []string{"input/anc.bpmn", "input/decisions/anc.dt.dmn"}, paths)
}

func TestCommit(t *testing.T) {
	files := []repo.CommitFile{
		{Path: "input/anc.bpmn", Content: "<definitions/>"},
		{Path: "sushi-config.json", Content: "{}"},
	}

	t.Run("writes, adds, commits, pushes", func(t *testing.T) {
		runner := &fakeRunner{responses: map[string]string{
			"git rev-parse HEAD": "deadbeef\n",
		}}
		client := newClient(t, runner)

		id, err := client.Commit(context.Background(), testKey, "update anc process", files)
		require.NoError(t, err)
		assert.Equal(t, "deadbeef", id)

		require.Len(t, runner.calls, 4)
		assert.Equal(t, "git add -- input/anc.bpmn sushi-config.json", runner.calls[0])
		assert.Equal(t, "git commit -m update anc process", runner.calls[1])
		assert.Equal(t, "git push origin HEAD:main", runner.calls[2])

		written, err := os.ReadFile(filepath.Join(client.root, "input", "anc.bpmn"))
		require.NoError(t, err)
		assert.Equal(t, "<definitions/>", string(written))
	})

	t.Run("rejected push maps to ErrConflict", func(t *testing.T) {
		runner := &fakeRunner{failures: map[string]error{
			"git push origin HEAD:main": errors.New("! [rejected] main -> main (fetch first)"),
		}}
		client := newClient(t, runner)

		_, err := client.Commit(context.Background(), testKey, "update", files)
		assert.ErrorIs(t, err, repo.ErrConflict)
	})

	t.Run("transport failure maps to ErrSink", func(t *testing.T) {
		runner := &fakeRunner{failures: map[string]error{
			"git push origin HEAD:main": errors.New("fatal: unable to access remote"),
		}}
		client := newClient(t, runner)

		_, err := client.Commit(context.Background(), testKey, "update", files)
		assert.ErrorIs(t, err, repo.ErrSink)
	})

	t.Run("empty message and empty file set are sink errors", func(t *testing.T) {
		client := newClient(t, &fakeRunner{})

		_, err := client.Commit(context.Background(), testKey, "", files)
		assert.ErrorIs(t, err, repo.ErrSink)

		_, err = client.Commit(context.Background(), testKey, "msg", nil)
		assert.ErrorIs(t, err, repo.ErrSink)
	})
}
