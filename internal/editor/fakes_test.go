package editor

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kalambet/profedit/internal/profile"
	"github.com/kalambet/profedit/internal/session"
	"github.com/kalambet/profedit/internal/source"
)

type fakeSession struct {
	mu       sync.Mutex
	token    string
	identity profile.Identity
}

func (s *fakeSession) Credential() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", session.ErrNoCredential
	}
	return s.token, nil
}

func (s *fakeSession) SetIdentity(id profile.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
}

// fakeSource answers from hooks, falling back to a fixed profile.
type fakeSource struct {
	mu      sync.Mutex
	profile source.Profile
	fetches int
	saves   []profile.WireUpdate
	uploads int

	onFetch  func(ctx context.Context) (source.Profile, error)
	onSave   func(ctx context.Context, u profile.WireUpdate) error
	onUpload func(ctx context.Context) (string, error)
}

func (f *fakeSource) Fetch(ctx context.Context) (source.Profile, error) {
	f.mu.Lock()
	f.fetches++
	hook, p := f.onFetch, f.profile
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx)
	}
	return p, nil
}

func (f *fakeSource) Save(ctx context.Context, u profile.WireUpdate) (profile.Wire, error) {
	f.mu.Lock()
	f.saves = append(f.saves, u)
	hook := f.onSave
	f.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, u); err != nil {
			return profile.Wire{}, err
		}
	}
	return profile.WireFromUpdate(profile.Wire{}, u), nil
}

func (f *fakeSource) UploadAvatar(ctx context.Context, name string, r io.Reader, size int64, progress func(sent, total int64)) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	progress(int64(len(data)), int64(len(data)))
	f.mu.Lock()
	f.uploads++
	hook := f.onUpload
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx)
	}
	return "/uploads/" + name, nil
}

func (f *fakeSource) set(fn func(f *fakeSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeSource) saveCalls() []profile.WireUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]profile.WireUpdate(nil), f.saves...)
}

func (f *fakeSource) fetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// gate blocks until released or ctx is done.
func gate(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func strp(s string) *string { return &s }

var ada = profile.Identity{ID: 3, Username: "ada", Email: "ada@example.com"}

func validWire() profile.Wire {
	return profile.Wire{
		FullName: strp("Ada Lovelace"),
		Headline: strp("Analyst"),
		Bio:      strp("First programmer."),
		Skills:   []string{"math", "engines"},
		Education: []profile.EducationEntry{
			{School: "Home", Degree: "Tutoring", Years: "1820-1830"},
		},
		ImageURL: strp("/uploads/old.png"),
	}
}

func pngFile(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}
