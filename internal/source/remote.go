package source

import (
	"context"
	"io"

	"github.com/kalambet/profedit/internal/profile"
)

// Remote serves the profile straight from the remote store.
type Remote struct {
	store RemoteStore
}

// NewRemote wraps a remote store client.
func NewRemote(store RemoteStore) *Remote {
	return &Remote{store: store}
}

func (r *Remote) Fetch(ctx context.Context) (Profile, error) {
	res, err := r.store.FetchProfile(ctx)
	if err != nil {
		return Profile{}, err
	}
	return Profile{Identity: res.User, Wire: res.Profile}, nil
}

func (r *Remote) Save(ctx context.Context, u profile.WireUpdate) (profile.Wire, error) {
	return r.store.SaveProfile(ctx, u)
}

func (r *Remote) UploadAvatar(ctx context.Context, name string, rd io.Reader, size int64, progress func(sent, total int64)) (string, error) {
	return r.store.UploadAvatar(ctx, name, rd, size, progress)
}
