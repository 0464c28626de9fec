package storage

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestLocalStore_WriteReadList(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Write("task_1", "0.png", []byte("a")))
	require.NoError(t, s.Write("task_1", "thumb_0.png", []byte("t")))
	require.NoError(t, s.Write("task_1", "1.png", []byte("b")))

	data, err := s.Read("task_1", "0.png")
	require.NoError(t, err)
	require.Equal(t, []byte("a"), data)

	names, err := s.List("task_1")
	require.NoError(t, err)
	require.Equal(t, []string{"0.png", "1.png", "thumb_0.png"}, names)

	_, err = s.Read("task_1", "9.png")
	require.True(t, errors.Is(err, ErrNotExist))

	// 无残留临时文件
	entries, err := os.ReadDir(filepath.Join(s.BaseDir(), "task_1"))
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	s := newStore(t)

	for _, name := range []string{"../x.png", "..", "a/b.png", `a\b.png`, ""} {
		_, err := s.Path("task_1", name)
		require.ErrorIs(t, err, ErrInvalidPath, name)
	}
	_, err := s.Path("../etc", "passwd")
	require.ErrorIs(t, err, ErrInvalidPath)

	p, err := s.Path("brand_1/logos", "logo.png")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(s.BaseDir(), "brand_1", "logos", "logo.png"), p)
}

func TestLocalStore_PageImagesAndVersions(t *testing.T) {
	s := newStore(t)
	for _, name := range []string{"0.png", "0_v2.png", "0_v3.png", "1.jpg", "thumb_0.png", "notes.txt", "2_v2.png"} {
		require.NoError(t, s.Write("task_1", name, []byte(name)))
	}

	latest, err := s.PageImages("task_1")
	require.NoError(t, err)
	require.Len(t, latest, 3)
	require.Equal(t, "0_v3.png", latest[0].Name)
	require.Equal(t, "1.jpg", latest[1].Name)
	require.Equal(t, "2_v2.png", latest[2].Name)

	next, err := s.NextVersion("task_1", 0)
	require.NoError(t, err)
	require.Equal(t, 4, next)

	next, err = s.NextVersion("task_1", 5)
	require.NoError(t, err)
	require.Equal(t, 2, next)

	next, err = s.NextVersion("task_missing", 0)
	require.NoError(t, err)
	require.Equal(t, 2, next)
}

func TestLocalStore_WriteZipSkipsThumbnails(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Write("task_1", "0.png", []byte("a")))
	require.NoError(t, s.Write("task_1", "thumb_0.png", []byte("t")))

	var buf bytes.Buffer
	n, err := s.WriteZip(&buf, "task_1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	require.Equal(t, "0.png", zr.File[0].Name)
}

func TestLocalStore_DirsAndRemove(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.EnsureDir("task_b"))
	require.NoError(t, s.Write("task_a", "0.png", []byte("a")))

	dirs, err := s.ListDirs()
	require.NoError(t, err)
	require.Equal(t, []string{"task_a", "task_b"}, dirs)

	require.True(t, s.DirExists("task_a"))
	require.NoError(t, s.RemoveDir("task_a"))
	require.False(t, s.DirExists("task_a"))

	require.NoError(t, s.Remove("task_b", "missing.png"))
}
