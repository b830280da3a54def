package storage

import (
	"errors"
	"time"

	"github.com/kalambet/profedit/internal/profile"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Snapshot origins.
const (
	OriginRemote = "remote"
	OriginLocal  = "local"
)

// Snapshot is the single locally kept copy of the last known profile.
type Snapshot struct {
	Identity profile.Identity
	Profile  profile.Wire
	// Origin records whether the copy came from the store or a local edit.
	Origin  string
	SavedAt time.Time
}
