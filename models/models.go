package models

import (
	"regexp"
	"time"
)

/*
 Application layer data models.
*/

const (
	// ContainerIDAlphabet lists the symbols container ids are drawn from
	ContainerIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	// ContainerIDLen is the length of container ids, giving 36^5 (about 60M) names
	ContainerIDLen = 5
)

var containerIDPattern = regexp.MustCompile(`^[a-z0-9]{5}$`)

// ValidContainerID reports whether id could have been generated for a container
func ValidContainerID(id string) bool {
	return containerIDPattern.MatchString(id)
}

// Container is a directory under the storage root holding exactly one uploaded file. Its filesystem
// change time is its creation time; no other record of it exists.
type Container struct {
	ID           string
	Path         string
	CreationTime time.Time
}

// Age returns how long the container has existed at now
func (c *Container) Age(now time.Time) time.Duration {
	return now.Sub(c.CreationTime)
}

// Expired reports whether the container reached the retention time at now
func (c *Container) Expired(now time.Time, retention time.Duration) bool {
	return c.Age(now) >= retention
}

// Upload describes a file stored in a container
type Upload struct {
	ContainerID string
	Filename    string
	Size        int64
}
