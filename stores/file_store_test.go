package stores

import (
	"context"
	"errors"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pe "dogbox.io/dogbox/errors"
	md "dogbox.io/dogbox/models"
)

func newTestStore(t *testing.T) *LocalFileStore {
	fs, err := NewLocalFileStore(t.TempDir())
	require.Nil(t, err)
	return fs
}

func TestRandomContainerID(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 200; i++ {
		id, err := RandomContainerID()
		require.NoError(t, err)
		assert.True(t, md.ValidContainerID(id), "unexpected id %q", id)
		seen[id] = struct{}{}
	}
	// 200 draws out of 36^5 names practically never collide
	assert.Greater(t, len(seen), 190)
}

func TestLocalFileStore_AllocateDistinct(t *testing.T) {
	fs := newTestStore(t)
	const n = 50
	ids := map[string]struct{}{}
	for i := 0; i < n; i++ {
		c, err := fs.Allocate()
		require.Nil(t, err)
		fi, serr := os.Stat(c.Path)
		require.NoError(t, serr)
		assert.True(t, fi.IsDir())
		assert.Equal(t, filepath.Join(fs.Root(), c.ID), c.Path)
		ids[c.ID] = struct{}{}
	}
	assert.Len(t, ids, n, "allocations should never share a name")
}

func TestLocalFileStore_AllocateRetriesOnCollision(t *testing.T) {
	fs := newTestStore(t)
	require.NoError(t, os.Mkdir(filepath.Join(fs.Root(), "aaaaa"), 0o755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(fs.Root(), "bbbbb"), []byte("x"), 0o644))
	queue := []string{"aaaaa", "bbbbb", "ccccc"}
	fs.NewID = func() (string, error) {
		id := queue[0]
		queue = queue[1:]
		return id, nil
	}
	c, err := fs.Allocate()
	require.Nil(t, err)
	assert.Equal(t, "ccccc", c.ID)
}

func TestLocalFileStore_AllocateGivesUp(t *testing.T) {
	fs := newTestStore(t)
	require.NoError(t, os.Mkdir(filepath.Join(fs.Root(), "aaaaa"), 0o755))
	calls := 0
	fs.NewID = func() (string, error) {
		calls++
		return "aaaaa", nil
	}
	c, err := fs.Allocate()
	assert.Nil(t, c)
	require.NotNil(t, err)
	assert.Equal(t, pe.ErrCodeServiceFailure, err.Code)
	assert.True(t, pe.HasCode(err, pe.ErrCodeExisted), "last collision should be kept as cause")
	assert.Equal(t, maxAllocAttempts, calls, "allocation should be bounded")
}

func TestSanitizeFilename(t *testing.T) {
	tcs := []struct {
		in       string
		expected string
		failed   bool
	}{
		{in: "test.txt", expected: "test.txt"},
		{in: "/a/b/test.txt", expected: "test.txt"},
		{in: "../../etc/passwd", expected: "passwd"},
		{in: `..\..\boot.ini`, expected: "boot.ini"},
		{in: "dir/", expected: "dir"},
		{in: "héllo wörld.txt", expected: "héllo wörld.txt"},
		{in: "", failed: true},
		{in: "/", failed: true},
		{in: "..", failed: true},
		{in: "a/..", failed: true},
		{in: ".", failed: true},
		{in: "nul\x00byte", failed: true},
	}
	for _, c := range tcs {
		t.Run(c.in, func(t *testing.T) {
			name, err := SanitizeFilename(c.in)
			if c.failed {
				assert.NotNil(t, err)
				return
			}
			assert.Nil(t, err)
			assert.Equal(t, c.expected, name)
		})
	}
}

func TestLocalFileStore_SaveAndGet(t *testing.T) {
	fs := newTestStore(t)
	c, err := fs.Allocate()
	require.Nil(t, err)
	up, err := fs.Save(context.Background(), c, "test.txt", strings.NewReader("0123456789"))
	require.Nil(t, err)
	assert.Equal(t, &md.Upload{ContainerID: c.ID, Filename: "test.txt", Size: 10}, up)

	rc, got, err := fs.Get(c.ID, "test.txt")
	require.Nil(t, err)
	defer rc.Close()
	b, rerr := ioutil.ReadAll(rc)
	require.NoError(t, rerr)
	assert.Equal(t, "0123456789", string(b))
	assert.Equal(t, int64(10), got.Size)
}

func TestLocalFileStore_SaveFailureRemovesContainer(t *testing.T) {
	tcs := []struct {
		name     string
		reader   io.Reader
		maxSize  int64
		filename string
		code     pe.ErrCode
	}{
		{
			name:     "ClientAbort",
			reader:   io.MultiReader(strings.NewReader("01234"), iotest.ErrReader(io.ErrUnexpectedEOF)),
			filename: "test.txt",
			code:     pe.ErrCodeBadRequest,
		},
		{
			name:     "Oversized",
			reader:   strings.NewReader("0123456789"),
			maxSize:  4,
			filename: "test.txt",
			code:     pe.ErrCodeTooLarge,
		},
		{
			name:     "BadFilename",
			reader:   strings.NewReader("0123456789"),
			filename: "..",
			code:     pe.ErrCodeBadRequest,
		},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			fs := newTestStore(t)
			fs.MaxSize = c.maxSize
			ct, err := fs.Allocate()
			require.Nil(t, err)
			up, err := fs.Save(context.Background(), ct, c.filename, c.reader)
			assert.Nil(t, up)
			require.NotNil(t, err)
			assert.Equal(t, c.code, err.Code)
			_, serr := os.Stat(ct.Path)
			assert.True(t, os.IsNotExist(serr), "container of failed upload should be gone")
		})
	}
}

func TestLocalFileStore_SaveCancelled(t *testing.T) {
	fs := newTestStore(t)
	ct, err := fs.Allocate()
	require.Nil(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = fs.Save(ctx, ct, "test.txt", strings.NewReader("0123456789"))
	require.NotNil(t, err)
	assert.Equal(t, pe.ErrCodeBadRequest, err.Code)
	assert.True(t, errors.Is(err, context.Canceled))
	_, serr := os.Stat(ct.Path)
	assert.True(t, os.IsNotExist(serr))
}

func TestLocalFileStore_GetRejects(t *testing.T) {
	fs := newTestStore(t)
	c, err := fs.Allocate()
	require.Nil(t, err)
	_, err = fs.Save(context.Background(), c, "test.txt", strings.NewReader("x"))
	require.Nil(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(c.Path, "sub"), 0o755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(fs.Root(), "stray"), []byte("x"), 0o644))

	tcs := []struct {
		name     string
		id       string
		filename string
	}{
		{name: "Missing", id: c.ID, filename: "other.txt"},
		{name: "BadID", id: "ABCDE", filename: "test.txt"},
		{name: "TraversalID", id: "..", filename: "stray"},
		{name: "TraversalName", id: c.ID, filename: "../../stray"},
		{name: "Directory", id: c.ID, filename: "sub"},
		{name: "UnknownContainer", id: "zzzzz", filename: "test.txt"},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			rc, up, err := fs.Get(tc.id, tc.filename)
			assert.Nil(t, rc)
			assert.Nil(t, up)
			require.NotNil(t, err)
			assert.Equal(t, pe.ErrCodeNotFound, err.Code)
		})
	}
}

func TestLocalFileStore_Containers(t *testing.T) {
	fs := newTestStore(t)
	c, err := fs.Allocate()
	require.Nil(t, err)
	require.NoError(t, ioutil.WriteFile(filepath.Join(fs.Root(), "stray"), []byte("x"), 0o644))

	cs, err := fs.Containers()
	require.Nil(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, c.ID, cs[0].ID)
	assert.False(t, cs[0].CreationTime.IsZero())

	require.Nil(t, fs.Delete(cs[0]))
	require.Nil(t, fs.Delete(cs[0]), "delete should be idempotent")
	cs, err = fs.Containers()
	require.Nil(t, err)
	assert.Empty(t, cs)
}
