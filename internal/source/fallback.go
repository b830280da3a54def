package source

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/kalambet/profedit/internal/logger"
	"github.com/kalambet/profedit/internal/profile"
	"github.com/kalambet/profedit/internal/remote"
	"github.com/kalambet/profedit/internal/storage"
)

// Fallback reads from the remote store and keeps the local snapshot current.
// When the store cannot be reached, a snapshot no older than maxAge is served
// with Stale set. Authorization failures are never masked. Saves and uploads
// always go to the store.
type Fallback struct {
	primary  *Remote
	snapshot SnapshotStore
	log      *logger.Logger
	clock    Clock
	maxAge   time.Duration
}

// NewFallback wraps a remote store with a snapshot fallback. maxAge of zero
// means any snapshot may be served.
func NewFallback(store RemoteStore, snapshot SnapshotStore, maxAge time.Duration, log *logger.Logger) *Fallback {
	return NewFallbackWithClock(store, snapshot, maxAge, log, realClock{})
}

// NewFallbackWithClock is NewFallback with a custom clock (for testing).
func NewFallbackWithClock(store RemoteStore, snapshot SnapshotStore, maxAge time.Duration, log *logger.Logger, clock Clock) *Fallback {
	if log == nil {
		log = logger.Nop()
	}
	return &Fallback{
		primary:  NewRemote(store),
		snapshot: snapshot,
		log:      log,
		clock:    clock,
		maxAge:   maxAge,
	}
}

func (f *Fallback) Fetch(ctx context.Context) (Profile, error) {
	p, err := f.primary.Fetch(ctx)
	if err == nil {
		f.remember(ctx, p.Identity, p.Wire)
		return p, nil
	}
	if errors.Is(err, remote.ErrUnauthorized) || ctx.Err() != nil {
		return Profile{}, err
	}

	snap, serr := f.snapshot.LoadSnapshot(ctx)
	if serr != nil {
		if !errors.Is(serr, storage.ErrNotFound) {
			f.log.Warn("reading fallback snapshot failed", "error", serr)
		}
		return Profile{}, err
	}
	if f.maxAge > 0 && f.clock.Now().Sub(snap.SavedAt) > f.maxAge {
		f.log.Info("fallback snapshot too old", "saved_at", snap.SavedAt, "max_age", f.maxAge)
		return Profile{}, err
	}

	f.log.Warn("remote store unavailable, serving local snapshot", "error", err, "saved_at", snap.SavedAt)
	return Profile{Identity: snap.Identity, Wire: snap.Profile, Stale: true, SavedAt: snap.SavedAt}, nil
}

func (f *Fallback) Save(ctx context.Context, u profile.WireUpdate) (profile.Wire, error) {
	w, err := f.primary.Save(ctx, u)
	if err != nil {
		return profile.Wire{}, err
	}
	if snap, serr := f.snapshot.LoadSnapshot(ctx); serr == nil {
		f.remember(ctx, snap.Identity, w)
	}
	return w, nil
}

func (f *Fallback) UploadAvatar(ctx context.Context, name string, r io.Reader, size int64, progress func(sent, total int64)) (string, error) {
	return f.primary.UploadAvatar(ctx, name, r, size, progress)
}

func (f *Fallback) remember(ctx context.Context, id profile.Identity, w profile.Wire) {
	err := f.snapshot.SaveSnapshot(ctx, storage.Snapshot{
		Identity: id,
		Profile:  w,
		Origin:   storage.OriginRemote,
		SavedAt:  f.clock.Now(),
	})
	if err != nil {
		f.log.Warn("updating fallback snapshot failed", "error", err)
	}
}
