package source

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kalambet/profedit/internal/profile"
	"github.com/kalambet/profedit/internal/storage"
)

// Local keeps the profile entirely in the local snapshot. Uploaded avatars
// are stored inline as data URLs.
type Local struct {
	store    SnapshotStore
	identity func() profile.Identity
	clock    Clock
}

// NewLocal returns a snapshot-backed source. identity supplies the account
// used when no snapshot exists yet; it may be nil.
func NewLocal(store SnapshotStore, identity func() profile.Identity) *Local {
	return &Local{store: store, identity: identity, clock: realClock{}}
}

func (l *Local) Fetch(ctx context.Context) (Profile, error) {
	snap, err := l.load(ctx)
	if err != nil {
		return Profile{}, err
	}
	return Profile{Identity: snap.Identity, Wire: snap.Profile, SavedAt: snap.SavedAt}, nil
}

func (l *Local) Save(ctx context.Context, u profile.WireUpdate) (profile.Wire, error) {
	snap, err := l.load(ctx)
	if err != nil {
		return profile.Wire{}, err
	}
	snap.Profile = profile.WireFromUpdate(snap.Profile, u)
	if err := l.write(ctx, snap); err != nil {
		return profile.Wire{}, err
	}
	return snap.Profile, nil
}

func (l *Local) UploadAvatar(ctx context.Context, name string, r io.Reader, size int64, progress func(sent, total int64)) (string, error) {
	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	n, err := io.Copy(&buf, r)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	if progress != nil {
		progress(n, n)
	}

	mime := http.DetectContentType(buf.Bytes())
	url := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	snap, err := l.load(ctx)
	if err != nil {
		return "", err
	}
	snap.Profile.ImageURL = &url
	if err := l.write(ctx, snap); err != nil {
		return "", err
	}
	return url, nil
}

func (l *Local) load(ctx context.Context) (storage.Snapshot, error) {
	snap, err := l.store.LoadSnapshot(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		var id profile.Identity
		if l.identity != nil {
			id = l.identity()
		}
		return storage.Snapshot{Identity: id, Origin: storage.OriginLocal}, nil
	}
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("loading local profile: %w", err)
	}
	return snap, nil
}

func (l *Local) write(ctx context.Context, snap storage.Snapshot) error {
	snap.Origin = storage.OriginLocal
	snap.SavedAt = l.clock.Now()
	if err := l.store.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("saving local profile: %w", err)
	}
	return nil
}
