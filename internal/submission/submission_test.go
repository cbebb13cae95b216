package submission

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anomaly-lab/jobctl/internal/apperr"
	"github.com/anomaly-lab/jobctl/internal/bundlestore"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	root := t.TempDir()
	bundles := bundlestore.New(filepath.Join(root, "submissions"), filepath.Join(root, "logs"))
	return New(bundles)
}

func TestCreateThenList(t *testing.T) {
	svc := newTestService(t)

	sid, err := svc.Create("alice", map[string][]byte{
		"main.py":     []byte("print('hi')"),
		"config.yaml": []byte("batch_size: 1"),
	}, "main.py", "config.yaml", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, sid)

	files, err := svc.List(sid, "alice")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestCreateRejectsBadFilename(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Create("alice", map[string][]byte{"bad.exe": []byte("x")}, "main.py", "config.yaml", nil)
	assert.Equal(t, apperr.KindInvalidName, apperr.KindOf(err))
}

func TestAppendThenList(t *testing.T) {
	svc := newTestService(t)
	sid, err := svc.Create("alice", map[string][]byte{"main.py": []byte("x")}, "main.py", "config.yaml", nil)
	require.NoError(t, err)

	require.NoError(t, svc.Append(sid, "config.yaml", []byte("batch_size: 1"), "alice"))

	files, err := svc.List(sid, "alice")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestListRejectsOtherUser(t *testing.T) {
	svc := newTestService(t)
	sid, err := svc.Create("alice", map[string][]byte{"main.py": []byte("x")}, "main.py", "config.yaml", nil)
	require.NoError(t, err)

	_, err = svc.List(sid, "bob")
	assert.Equal(t, apperr.KindNotOwner, apperr.KindOf(err))
}
