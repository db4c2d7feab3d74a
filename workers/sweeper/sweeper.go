// Package sweeper vends a long-running worker to delete containers which outlived the retention time.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"dogbox.io/dogbox/common/logging"
	rt "dogbox.io/dogbox/common/retry"
	pe "dogbox.io/dogbox/errors"
	md "dogbox.io/dogbox/models"
)

// ContainerStore is the part of stores.FileStore the sweeper works on
type ContainerStore interface {
	Containers() ([]*md.Container, *pe.Err)
	Delete(c *md.Container) *pe.Err
}

// Sweeper deletes containers at least Retention old. Run sweeps once immediately and then again half the
// retention time after each sweep finishes, so a container lives between 0.5x and 1.5x the retention time.
type Sweeper struct {
	Store     ContainerStore
	Retention time.Duration
	// PoolSize bounds the number of concurrent deletions; non-positive means 1
	PoolSize int
	// Now defaults to time.Now
	Now func() time.Time
	// RetryBaseDelay is the first wait before deleting a container again after a failure. Defaults to
	// defaultRetryBaseDelay.
	RetryBaseDelay time.Duration
}

const (
	defaultRetryBaseDelay = 200 * time.Millisecond
	// deleteRetries is the number of extra tries for a container failing to be removed
	deleteRetries = 2
)

// Report summarizes one sweep
type Report struct {
	Scanned int
	Removed int
	Failed  int
}

// New returns a Sweeper over store, validating the retention time
func New(store ContainerStore, retention time.Duration, poolSize int) (*Sweeper, *pe.Err) {
	if retention <= 0 {
		return nil, pe.NewConfig(fmt.Sprintf("got non-positive retention time %s", retention))
	}
	return &Sweeper{Store: store, Retention: retention, PoolSize: poolSize}, nil
}

// Interval is the delay between the end of one sweep and the start of the next
func (s *Sweeper) Interval() time.Duration {
	return s.Retention / 2
}

// remove deletes c, retrying service failures with exponential backoff for no longer than the sweep
// interval. Errors of other kinds are returned at once.
func (s *Sweeper) remove(c *md.Container) *pe.Err {
	base := s.RetryBaseDelay
	if base <= 0 {
		base = defaultRetryBaseDelay
	}
	var last *pe.Err
	err := rt.Retry(func() error {
		last = s.Store.Delete(c)
		if last != nil {
			return last
		}
		return nil
	},
		rt.WithMaxAttempts(deleteRetries),
		rt.WithBaseDelay(base),
		rt.WithExp(2),
		rt.WithJitter(0.1),
		rt.WithMaxBackoff(s.Interval()),
		rt.WithTimeout(s.Interval()),
		rt.WithRetryOn(func(err error) bool { return pe.HasCode(err, pe.ErrCodeServiceFailure) }),
	)
	switch {
	case err == nil:
		return nil
	case err == rt.ErrRetryTimedOut && last != nil:
		return pe.NewServiceFailure("gave up removing container").WithCause(last)
	case last != nil:
		return last
	default:
		return pe.NewServiceFailure("error removing container").WithCause(err)
	}
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Sweep removes every expired container. A container failing to be removed, even by panicking, is logged
// and counted without stopping the sweep; only failing to list the store fails the sweep as a whole.
func (s *Sweeper) Sweep(ctx context.Context) (Report, *pe.Err) {
	clog := logging.FromContext(ctx)
	var rep Report
	cs, err := s.Store.Containers()
	if err != nil {
		clog.WithError(err).Error("error listing containers")
		return rep, err
	}
	rep.Scanned = len(cs)
	now := s.now()
	poolSize := s.PoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	quotas := make(chan struct{}, poolSize)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, c := range cs {
		if !c.Expired(now, s.Retention) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		quotas <- struct{}{}
		go func(c *md.Container) {
			defer wg.Done()
			defer func() { <-quotas }()
			flog := clog.WithFields(log.Fields{"container": c.ID, "age": c.Age(now).String()})
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					defer mu.Unlock()
					rep.Failed++
					flog.WithField("panicReason", r).Error("got panic while removing expired container")
				}
			}()
			derr := s.remove(c)
			mu.Lock()
			defer mu.Unlock()
			if derr != nil {
				rep.Failed++
				flog.WithError(derr).Error("error removing expired container")
				return
			}
			rep.Removed++
			flog.Info("removed expired container")
		}(c)
	}
	wg.Wait()
	return rep, nil
}

// sweepSafely keeps a panicking sweep from taking the process down
func (s *Sweeper) sweepSafely(ctx context.Context) {
	clog := logging.FromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			clog.WithField("panicReason", r).Error("got panic while sweeping")
		}
	}()
	clog.Debug("sweeping expired containers")
	rep, err := s.Sweep(ctx)
	if err != nil {
		return
	}
	clog.WithFields(log.Fields{
		"scanned": rep.Scanned,
		"removed": rep.Removed,
		"failed":  rep.Failed,
	}).Info("sweep done")
}

// Run sweeps until ctx is done
func (s *Sweeper) Run(ctx context.Context) {
	clog := logging.FromContext(ctx).WithField("interval", s.Interval().String())
	clog.Info("sweeper started")
	for {
		s.sweepSafely(ctx)
		t := time.NewTimer(s.Interval())
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			clog.Info("sweeper stopped")
			return
		}
	}
}
