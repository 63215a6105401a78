package common

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewUID returns an opaque correlation identifier for sessions and turns.
func NewUID() string {
	return uuid.NewString()
}

// NewULID returns a lexicographically sortable id for tuning jobs.
func NewULID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
