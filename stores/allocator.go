package stores

import (
	"crypto/rand"
	"os"
	"path/filepath"

	"dogbox.io/dogbox/common/logging"
	rt "dogbox.io/dogbox/common/retry"
	pe "dogbox.io/dogbox/errors"
	md "dogbox.io/dogbox/models"
)

// maxAllocAttempts bounds the search for a free container name. With 36^5 names a single collision is
// already unlikely; running out means the root is (nearly) full or broken.
const maxAllocAttempts = 100

// RandomContainerID returns a uniformly random id of md.ContainerIDLen symbols of md.ContainerIDAlphabet
func RandomContainerID() (string, error) {
	const n = len(md.ContainerIDAlphabet)
	// largest multiple of n not above 256; bytes beyond it would skew the distribution
	const limit = 256 - 256%n
	id := make([]byte, 0, md.ContainerIDLen)
	buf := make([]byte, md.ContainerIDLen*2)
	for len(id) < md.ContainerIDLen {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			id = append(id, md.ContainerIDAlphabet[int(b)%n])
			if len(id) == md.ContainerIDLen {
				break
			}
		}
	}
	return string(id), nil
}

// Allocate creates a new container under the storage root. Names are drawn at random until one is free;
// creation itself fails if the name got taken in between, which counts as another collision.
func (fs *LocalFileStore) Allocate() (*md.Container, *pe.Err) {
	clog := logging.WithFuncName()
	newID := fs.NewID
	if newID == nil {
		newID = RandomContainerID
	}
	var c *md.Container
	attempts := 0
	err := rt.Retry(func() error {
		attempts++
		id, err := newID()
		if err != nil {
			return err
		}
		p := filepath.Join(fs.root, id)
		if _, err := os.Lstat(p); err == nil {
			return pe.NewExisted("container name taken: " + id)
		} else if !os.IsNotExist(err) {
			return err
		}
		if err := os.Mkdir(p, 0o755); err != nil {
			if os.IsExist(err) {
				return pe.NewExisted("container name taken: " + id).WithCause(err)
			}
			return err
		}
		fi, err := os.Stat(p)
		if err != nil {
			return err
		}
		c = &md.Container{ID: id, Path: p, CreationTime: fs.creationTime(fi)}
		return nil
	},
		rt.WithMaxAttempts(maxAllocAttempts-1),
		rt.WithRetryOn(func(err error) bool { return pe.HasCode(err, pe.ErrCodeExisted) }),
	)
	if err != nil {
		clog.WithError(err).WithField("attempts", attempts).Error("error allocating container")
		return nil, pe.NewServiceFailure("error allocating container").WithCause(err)
	}
	if attempts > 1 {
		clog.WithField("attempts", attempts).Warn("container name collisions while allocating")
	}
	return c, nil
}
