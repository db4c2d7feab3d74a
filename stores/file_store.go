package stores

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"dogbox.io/dogbox/common/logging"
	cst "dogbox.io/dogbox/constants"
	pe "dogbox.io/dogbox/errors"
	md "dogbox.io/dogbox/models"
)

// FileStore stores uploaded files, one per container
type FileStore interface {
	// Allocate creates a new, empty container
	Allocate() (*md.Container, *pe.Err)
	// Save writes the content of r as filename into c. On failure c and everything in it are removed.
	Save(ctx context.Context, c *md.Container, filename string, r io.Reader) (*md.Upload, *pe.Err)
	// Get opens the file filename of container id for reading
	Get(id, filename string) (io.ReadCloser, *md.Upload, *pe.Err)
	// Containers lists the containers currently in store
	Containers() ([]*md.Container, *pe.Err)
	// Delete removes a container and its content. Delete must be idempotent
	Delete(c *md.Container) *pe.Err
	Close() *pe.Err
}

// LocalFileStore implements FileStore backed by local file system. Every immediate subdirectory of the root
// is a container.
type LocalFileStore struct {
	root string
	// MaxSize caps the size of a single upload in bytes. Non-positive means no cap.
	MaxSize int64
	// NewID generates container ids; defaults to RandomContainerID
	NewID func() (string, error)
	// CreationTime tells the creation time of a container; defaults to ChangeTime
	CreationTime func(os.FileInfo) time.Time
}

// NewLocalFileStore returns a LocalFileStore rooted at root, creating root if needed
func NewLocalFileStore(root string) (*LocalFileStore, *pe.Err) {
	if root == "" {
		return nil, pe.NewConfig("empty storage path")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, pe.NewConfig(fmt.Sprintf("invalid storage path %s", root)).WithCause(err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, pe.NewConfig(fmt.Sprintf("error preparing storage path %s", abs)).WithCause(err)
	}
	return &LocalFileStore{root: abs}, nil
}

func (fs *LocalFileStore) Root() string {
	return fs.root
}

func (fs *LocalFileStore) creationTime(fi os.FileInfo) time.Time {
	if fs.CreationTime != nil {
		return fs.CreationTime(fi)
	}
	return ChangeTime(fi)
}

// SanitizeFilename reduces name to its last path element. It fails if nothing usable is left.
func SanitizeFilename(name string) (string, *pe.Err) {
	// treat both separators alike regardless of platform
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimRight(name, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, 0) {
		return "", pe.NewBadInput("invalid filename")
	}
	return name, nil
}

// sourceReader remembers errors of the underlying reader, telling client failures from storage failures
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

func (fs *LocalFileStore) Save(ctx context.Context, c *md.Container, filename string, r io.Reader) (*md.Upload, *pe.Err) {
	clog := logging.FromContext(ctx).WithFields(log.Fields{"container": c.ID, "filename": filename})
	name, perr := SanitizeFilename(filename)
	if perr != nil {
		fs.discard(clog, c)
		return nil, perr
	}
	// 1. prepare file to host data
	f, err := os.OpenFile(filepath.Join(c.Path, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		fs.discard(clog, c)
		return nil, pe.NewServiceFailure("error allocating file storage space").WithCause(err)
	}
	// 2. pipe data to file
	if fs.MaxSize > 0 {
		r = http.MaxBytesReader(nil, io.NopCloser(r), fs.MaxSize)
	}
	src := &sourceReader{r: r}
	n, err := bufio.NewReader(src).WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		fs.discard(clog, c)
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, pe.NewTooLarge(cst.ErrMsgRequestBodyTooLarge).WithCause(err)
		case src.err != nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, pe.NewBadInput("upload aborted by client").WithCause(err)
		default:
			return nil, pe.NewServiceFailure("error saving upload").WithCause(err)
		}
	}
	return &md.Upload{ContainerID: c.ID, Filename: name, Size: n}, nil
}

// discard removes a container whose upload failed
func (fs *LocalFileStore) discard(clog *log.Entry, c *md.Container) {
	if err := fs.Delete(c); err != nil {
		clog.WithError(err).Error("error removing container of failed upload")
		return
	}
	clog.Info("removed container of failed upload")
}

func (fs *LocalFileStore) Get(id, filename string) (io.ReadCloser, *md.Upload, *pe.Err) {
	const errMsg = "file not found"
	if !md.ValidContainerID(id) {
		return nil, nil, pe.NewNotFound(errMsg)
	}
	if name, err := SanitizeFilename(filename); err != nil || name != filename {
		return nil, nil, pe.NewNotFound(errMsg)
	}
	p := filepath.Join(fs.root, id, filename)
	if rel, err := filepath.Rel(fs.root, p); err != nil || strings.HasPrefix(rel, "..") {
		return nil, nil, pe.NewNotFound(errMsg)
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, pe.NewNotFound(errMsg).WithCause(err)
		}
		return nil, nil, pe.NewServiceFailure("error retrieving file").WithCause(err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, pe.NewServiceFailure("error retrieving file").WithCause(err)
	}
	if !fi.Mode().IsRegular() {
		f.Close()
		return nil, nil, pe.NewNotFound(errMsg)
	}
	return f, &md.Upload{ContainerID: id, Filename: filename, Size: fi.Size()}, nil
}

// Containers lists the directories under the root. Entries vanishing or failing stat while listing are
// logged and skipped; regular files at the root are ignored.
func (fs *LocalFileStore) Containers() ([]*md.Container, *pe.Err) {
	clog := logging.WithFuncName()
	entries, err := os.ReadDir(fs.root)
	if err != nil {
		return nil, pe.NewServiceFailure("error listing storage root").WithCause(err)
	}
	cs := make([]*md.Container, 0, len(entries))
	for _, e := range entries {
		p := filepath.Join(fs.root, e.Name())
		// stat follows symlinks, so a linked directory counts like a real one
		fi, err := os.Stat(p)
		if err != nil {
			clog.WithError(err).WithField("path", p).Warn("error inspecting storage entry")
			continue
		}
		if !fi.IsDir() {
			continue
		}
		cs = append(cs, &md.Container{ID: e.Name(), Path: p, CreationTime: fs.creationTime(fi)})
	}
	return cs, nil
}

func (fs *LocalFileStore) Delete(c *md.Container) *pe.Err {
	if err := os.RemoveAll(c.Path); err != nil {
		return pe.NewServiceFailure("error removing container").WithCause(err)
	}
	return nil
}

func (fs *LocalFileStore) Close() *pe.Err {
	return nil
}
