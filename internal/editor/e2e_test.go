package editor_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/profedit/internal/editor"
	"github.com/kalambet/profedit/internal/profile"
	"github.com/kalambet/profedit/internal/remote"
	"github.com/kalambet/profedit/internal/remote/remotetest"
	"github.com/kalambet/profedit/internal/session"
	"github.com/kalambet/profedit/internal/source"
	"github.com/kalambet/profedit/internal/storage"
	"github.com/kalambet/profedit/internal/upload"
)

func setup(t *testing.T, wire profile.Wire) (*editor.Controller, *remotetest.Store) {
	t.Helper()
	id := profile.Identity{ID: 9, Username: "grace", Email: "grace@example.com"}
	st := remotetest.New(t, "tok", id, wire)

	sess := session.New(nil)
	require.NoError(t, sess.Init("tok", id))

	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := remote.New(st.URL(), sess, 5*time.Second)
	src := source.NewFallback(client, db, time.Hour, nil)
	c := editor.New(src, sess, editor.WithAssetBase(st.URL()))
	t.Cleanup(c.Close)
	return c, st
}

func TestEmptyRemoteProfileFailsValidation(t *testing.T) {
	empty := ""
	c, st := setup(t, profile.Wire{Bio: &empty, Skills: []string{}})

	require.NoError(t, c.Load(context.Background()))
	v := c.View()
	assert.Equal(t, "No bio available.", v.Form.Bio)
	assert.Equal(t, "", v.Form.Skills)
	assert.Equal(t, "grace", v.Form.Name)

	err := c.Save(context.Background())
	require.ErrorIs(t, err, editor.ErrInvalidForm)
	v = c.View()
	assert.Equal(t, profile.Errors{
		"bio":    "Bio is required.",
		"skills": "At least one skill is required.",
	}, v.Errors)
	assert.Empty(t, st.Saves())
}

func TestEditUploadAndSaveAgainstStore(t *testing.T) {
	c, st := setup(t, profile.Wire{})
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	require.NoError(t, c.SetFields(map[string]string{
		"bio":    "Compiler pioneer.",
		"skills": "COBOL, compilers",
	}))

	res, err := c.Upload(ctx, upload.File{Name: "grace.png", Data: pngData(t)})
	require.NoError(t, err)
	assert.Equal(t, st.URL()+"/uploads/profile_9_1_grace.png", c.View().Form.Avatar)
	assert.Equal(t, res.URL, c.View().Form.Avatar)

	require.NoError(t, c.Save(ctx))
	assert.Equal(t, editor.NavigateView, c.View().Navigate)

	saved := st.Profile()
	require.NotNil(t, saved.Bio)
	assert.Equal(t, "Compiler pioneer.", *saved.Bio)
	assert.Equal(t, []string{"COBOL", "compilers"}, saved.Skills)
}

func TestStoreOutageServesSnapshot(t *testing.T) {
	bio := "Admiral."
	c, st := setup(t, profile.Wire{Bio: &bio, Skills: []string{"navy"}})
	ctx := context.Background()

	require.NoError(t, c.Load(ctx))
	assert.False(t, c.View().Stale)

	st.FailFetch(http.StatusServiceUnavailable, "maintenance")
	require.NoError(t, c.Reload(ctx))
	v := c.View()
	assert.Equal(t, editor.Ready, v.Phase)
	assert.True(t, v.Stale)
	assert.Equal(t, "Admiral.", v.Form.Bio)
}
