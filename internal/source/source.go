// Package source provides the data-source capability the editor loads from
// and saves to: the remote store, a local snapshot, or the remote store with
// the snapshot as a fallback.
package source

import (
	"context"
	"io"
	"time"

	"github.com/kalambet/profedit/internal/profile"
	"github.com/kalambet/profedit/internal/remote"
	"github.com/kalambet/profedit/internal/storage"
)

// Profile is a loaded profile together with where it came from.
type Profile struct {
	Identity profile.Identity
	Wire     profile.Wire
	// Stale is set when the remote store was unreachable and a local snapshot
	// was served instead.
	Stale   bool
	SavedAt time.Time
}

// DataSource is what the editor needs from a profile backend.
type DataSource interface {
	Fetch(ctx context.Context) (Profile, error)
	Save(ctx context.Context, u profile.WireUpdate) (profile.Wire, error)
	UploadAvatar(ctx context.Context, name string, r io.Reader, size int64, progress func(sent, total int64)) (string, error)
}

// RemoteStore is the subset of *remote.Client used here.
type RemoteStore interface {
	FetchProfile(ctx context.Context) (remote.FetchResult, error)
	SaveProfile(ctx context.Context, u profile.WireUpdate) (profile.Wire, error)
	UploadAvatar(ctx context.Context, name string, r io.Reader, size int64, progress func(sent, total int64)) (string, error)
}

// SnapshotStore is the subset of *storage.Store used here.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap storage.Snapshot) error
	LoadSnapshot(ctx context.Context) (storage.Snapshot, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
