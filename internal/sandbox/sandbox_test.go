package sandbox

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestPolicy(t *testing.T) (*Policy, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "transcript.md"), []byte("episode text"), 0o644))
	p, err := NewPolicy(dir)
	require.NoError(t, err)
	return p, dir
}

func TestNewPolicyRequiresDirs(t *testing.T) {
	_, err := NewPolicy()
	require.Error(t, err)
}

func TestNewPolicyRejectsMissingDir(t *testing.T) {
	_, err := NewPolicy(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}

func TestReadInsideAllowlist(t *testing.T) {
	p, dir := newTestPolicy(t)

	data, err := p.ReadFile(filepath.Join(dir, "transcript.md"))
	require.NoError(t, err)
	require.Equal(t, "episode text", string(data))

	rc, err := p.Open(filepath.Join(dir, "transcript.md"))
	require.NoError(t, err)
	require.NoError(t, rc.Close())
}

func TestReadOutsideAllowlist(t *testing.T) {
	p, _ := newTestPolicy(t)

	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("nope"), 0o644))

	_, err := p.ReadFile(outside)
	require.ErrorIs(t, err, ErrOutsideAllowlist)
}

func TestReadDotDotEscapeDenied(t *testing.T) {
	p, dir := newTestPolicy(t)

	escaped := filepath.Join(dir, "..", "..", "etc", "passwd")
	err := p.CheckRead(escaped)
	require.ErrorIs(t, err, ErrOutsideAllowlist)
}

func TestReadSymlinkEscapeDenied(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	p, dir := newTestPolicy(t)

	target := filepath.Join(t.TempDir(), "outside.txt")
	require.NoError(t, os.WriteFile(target, []byte("secret"), 0o644))
	link := filepath.Join(dir, "innocent.md")
	require.NoError(t, os.Symlink(target, link))

	// The path sits under the allowed dir but resolves outside it.
	_, err := p.ReadFile(link)
	require.ErrorIs(t, err, ErrOutsideAllowlist)
}

func TestSymlinkedParentOfMissingFileDenied(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	p, dir := newTestPolicy(t)

	outsideDir := t.TempDir()
	linkDir := filepath.Join(dir, "sub")
	require.NoError(t, os.Symlink(outsideDir, linkDir))

	// Nonexistent leaf under a symlinked parent still resolves the
	// parent before the prefix check.
	err := p.CheckRead(filepath.Join(linkDir, "missing.md"))
	require.ErrorIs(t, err, ErrOutsideAllowlist)
}

func TestMissingFileInsideAllowlist(t *testing.T) {
	p, dir := newTestPolicy(t)

	missing := filepath.Join(dir, "missing.md")
	require.NoError(t, p.CheckRead(missing), "checking a nonexistent in-bounds path is allowed")

	_, err := p.Open(missing)
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestWritesAlwaysDenied(t *testing.T) {
	p, dir := newTestPolicy(t)

	err := p.WriteFile(filepath.Join(dir, "new.md"), []byte("x"), 0o644)
	require.ErrorIs(t, err, ErrWriteDenied)

	_, err = p.OpenWrite(filepath.Join(dir, "transcript.md"))
	require.ErrorIs(t, err, ErrWriteDenied)
}

func TestCheckImport(t *testing.T) {
	p, _ := newTestPolicy(t)

	tests := []struct {
		module  string
		blocked bool
	}{
		{"subprocess", true},
		{"socket", true},
		{"http", true},
		{"http.client", true},
		{"urllib.request", true},
		{"ctypes", true},
		{"posix", true},
		{"re", false},
		{"json", false},
		{"collections.abc", false},
		{"math", false},
	}
	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			err := p.CheckImport(tt.module)
			if tt.blocked {
				require.ErrorIs(t, err, ErrModuleBlocked)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAllowedDirsCopies(t *testing.T) {
	p, _ := newTestPolicy(t)
	dirs := p.AllowedDirs()
	require.Len(t, dirs, 1)
	dirs[0] = "/mutated"
	require.NotEqual(t, "/mutated", p.AllowedDirs()[0])
}

func TestProvisionerAppliesOnce(t *testing.T) {
	p, _ := newTestPolicy(t)

	var pr Provisioner
	require.False(t, pr.Applied())

	installs := 0
	pr.Apply(p, func(*Policy) { installs++ })
	pr.Apply(p, func(*Policy) { installs++ })

	require.Equal(t, 1, installs)
	require.True(t, pr.Applied())
}

func TestCheckReadAllowsAllowedDirItself(t *testing.T) {
	p, dir := newTestPolicy(t)
	require.NoError(t, p.CheckRead(dir))
}
