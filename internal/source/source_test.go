package source

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/profedit/internal/profile"
	"github.com/kalambet/profedit/internal/remote"
	"github.com/kalambet/profedit/internal/remote/remotetest"
	"github.com/kalambet/profedit/internal/storage"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

type tokenCreds string

func (c tokenCreds) Credential() (string, error) { return string(c), nil }

func strp(s string) *string { return &s }

var ada = profile.Identity{ID: 3, Username: "ada", Email: "ada@example.com"}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newFake(t *testing.T) (*remotetest.Store, *remote.Client) {
	st := remotetest.New(t, "tok", ada, profile.Wire{FullName: strp("Ada"), Skills: []string{"math"}})
	return st, remote.New(st.URL(), tokenCreds("tok"), 5*time.Second)
}

func TestRemoteFetch(t *testing.T) {
	_, c := newFake(t)
	p, err := NewRemote(c).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ada, p.Identity)
	assert.False(t, p.Stale)
	assert.Equal(t, []string{"math"}, p.Wire.Skills)
}

func TestFallbackWritesSnapshotOnSuccess(t *testing.T) {
	_, c := newFake(t)
	db := openStore(t)
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	fb := NewFallbackWithClock(c, db, time.Hour, nil, clock)

	_, err := fb.Fetch(context.Background())
	require.NoError(t, err)

	snap, err := db.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ada, snap.Identity)
	assert.Equal(t, storage.OriginRemote, snap.Origin)
	assert.True(t, clock.t.Equal(snap.SavedAt))
}

func TestFallbackServesStaleSnapshot(t *testing.T) {
	st, c := newFake(t)
	db := openStore(t)
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	fb := NewFallbackWithClock(c, db, time.Hour, nil, clock)

	_, err := fb.Fetch(context.Background())
	require.NoError(t, err)

	st.FailFetch(http.StatusServiceUnavailable, "maintenance")
	clock.t = clock.t.Add(30 * time.Minute)

	p, err := fb.Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, p.Stale)
	require.NotNil(t, p.Wire.FullName)
	assert.Equal(t, "Ada", *p.Wire.FullName)
}

func TestFallbackRejectsExpiredSnapshot(t *testing.T) {
	st, c := newFake(t)
	db := openStore(t)
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	fb := NewFallbackWithClock(c, db, time.Hour, nil, clock)

	_, err := fb.Fetch(context.Background())
	require.NoError(t, err)

	st.FailFetch(http.StatusServiceUnavailable, "maintenance")
	clock.t = clock.t.Add(2 * time.Hour)

	_, err = fb.Fetch(context.Background())
	var apiErr *remote.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "maintenance", apiErr.Message)
}

func TestFallbackNeverMasksUnauthorized(t *testing.T) {
	st, _ := newFake(t)
	db := openStore(t)
	require.NoError(t, db.SaveSnapshot(context.Background(), storage.Snapshot{Identity: ada}))

	c := remote.New(st.URL(), tokenCreds("wrong"), 5*time.Second)
	fb := NewFallback(c, db, 0, nil)

	_, err := fb.Fetch(context.Background())
	assert.ErrorIs(t, err, remote.ErrUnauthorized)
}

func TestFallbackWithoutSnapshotReturnsRemoteError(t *testing.T) {
	st, c := newFake(t)
	st.FailFetch(http.StatusInternalServerError, "boom")
	fb := NewFallback(c, openStore(t), 0, nil)

	_, err := fb.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestFallbackSaveRefreshesSnapshot(t *testing.T) {
	_, c := newFake(t)
	db := openStore(t)
	fb := NewFallback(c, db, 0, nil)
	ctx := context.Background()

	_, err := fb.Fetch(ctx)
	require.NoError(t, err)

	_, err = fb.Save(ctx, profile.WireUpdate{Name: "Ada King", Skills: []string{"poetry"}})
	require.NoError(t, err)

	snap, err := db.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Profile.FullName)
	assert.Equal(t, "Ada King", *snap.Profile.FullName)
	assert.Equal(t, ada, snap.Identity)
}

func TestLocalFetchEmpty(t *testing.T) {
	l := NewLocal(openStore(t), func() profile.Identity { return ada })

	p, err := l.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ada, p.Identity)
	assert.Nil(t, p.Wire.FullName)
}

func TestLocalSaveAndUpload(t *testing.T) {
	db := openStore(t)
	l := NewLocal(db, func() profile.Identity { return ada })
	ctx := context.Background()

	w, err := l.Save(ctx, profile.WireUpdate{Name: "Ada", Bio: "Analyst", Skills: []string{"math"}})
	require.NoError(t, err)
	require.NotNil(t, w.Bio)
	assert.Equal(t, "Analyst", *w.Bio)

	png := []byte("\x89PNG\r\n\x1a\n rest-of-image")
	var sent, total int64
	url, err := l.UploadAvatar(ctx, "me.png", bytes.NewReader(png), int64(len(png)), func(s, tot int64) { sent, total = s, tot })
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"), url)
	assert.Equal(t, total, sent)

	p, err := l.Fetch(ctx)
	require.NoError(t, err)
	require.NotNil(t, p.Wire.ImageURL)
	assert.Equal(t, url, *p.Wire.ImageURL)
	require.NotNil(t, p.Wire.Bio)
	assert.Equal(t, "Analyst", *p.Wire.Bio)

	snap, err := db.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.OriginLocal, snap.Origin)
}

type brokenSnapshots struct{}

func (brokenSnapshots) SaveSnapshot(context.Context, storage.Snapshot) error {
	return errors.New("disk full")
}

func (brokenSnapshots) LoadSnapshot(context.Context) (storage.Snapshot, error) {
	return storage.Snapshot{}, errors.New("disk gone")
}

func TestFallbackSnapshotFailuresDoNotFailFetch(t *testing.T) {
	_, c := newFake(t)
	fb := NewFallback(c, brokenSnapshots{}, 0, nil)

	p, err := fb.Fetch(context.Background())
	require.NoError(t, err)
	assert.False(t, p.Stale)
}
