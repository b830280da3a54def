package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddEntry_CopyOnWrite(t *testing.T) {
	orig := []Language{{ID: "a", Name: "Tamil", Level: "Native"}}

	out := AddEntry(orig, Language{})

	require.Len(t, out, 2)
	assert.Len(t, orig, 1)
	assert.Equal(t, orig[0], out[0])
	assert.NotEmpty(t, out[1].ID)
	assert.NotEqual(t, "a", out[1].ID)
	assert.Empty(t, out[1].Name)
}

func TestRemoveEntry_LastEntryIsNoop(t *testing.T) {
	orig := []Education{{ID: "only", School: "MIT"}}

	out, ok := RemoveEntry(orig, "only")

	assert.False(t, ok)
	assert.Len(t, out, 1)
	assert.Equal(t, orig, out)
}

func TestRemoveEntry_ByID(t *testing.T) {
	orig := []SocialLink{{ID: "1", Platform: "LinkedIn"}, {ID: "2", Platform: "GitHub"}, {ID: "3", Platform: "Twitter"}}

	out, ok := RemoveEntry(orig, "1")
	require.True(t, ok)
	assert.Equal(t, []SocialLink{{ID: "2", Platform: "GitHub"}, {ID: "3", Platform: "Twitter"}}, out)
	assert.Len(t, orig, 3)

	// Identity survives the shift: id 3 still addresses Twitter.
	out, err := UpdateEntry(out, "3", "url", "https://x.com/j")
	require.NoError(t, err)
	assert.Equal(t, "https://x.com/j", out[1].URL)
	assert.Equal(t, "Twitter", out[1].Platform)
}

func TestRemoveEntry_UnknownID(t *testing.T) {
	orig := []Language{{ID: "1"}, {ID: "2"}}
	out, ok := RemoveEntry(orig, "nope")
	assert.False(t, ok)
	assert.Equal(t, orig, out)
}

func TestUpdateEntry(t *testing.T) {
	orig := []Education{{ID: "1", School: "A"}, {ID: "2", School: "B"}}

	out, err := UpdateEntry(orig, "2", "degree", "MSc")
	require.NoError(t, err)
	assert.Equal(t, Education{ID: "2", School: "B", Degree: "MSc"}, out[1])
	assert.Equal(t, orig[0], out[0])
	assert.Empty(t, orig[1].Degree)

	_, err = UpdateEntry(orig, "3", "degree", "x")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	_, err = UpdateEntry(orig, "1", "gpa", "4.0")
	assert.ErrorIs(t, err, ErrUnknownEntryField)
}

func TestFormGroupOps(t *testing.T) {
	f := NewForm()
	require.Len(t, f.Languages, 1)

	_, err := f.RemoveEntry(GroupLanguages, f.Languages[0].ID)
	assert.ErrorIs(t, err, ErrLastEntry)

	f2, id, err := f.AddEntry(GroupLanguages)
	require.NoError(t, err)
	assert.Len(t, f2.Languages, 2)
	assert.Len(t, f.Languages, 1)

	f3, err := f2.UpdateEntry(GroupLanguages, id, "name", "English")
	require.NoError(t, err)
	assert.Equal(t, "English", f3.Languages[1].Name)
	assert.Empty(t, f2.Languages[1].Name)

	f4, err := f3.RemoveEntry(GroupLanguages, f3.Languages[0].ID)
	require.NoError(t, err)
	require.Len(t, f4.Languages, 1)
	assert.Equal(t, id, f4.Languages[0].ID)

	_, _, err = f.AddEntry(Group("projects"))
	assert.ErrorIs(t, err, ErrUnknownGroup)
}

func TestParseGroup(t *testing.T) {
	g, err := ParseGroup("socialLinks")
	require.NoError(t, err)
	assert.Equal(t, GroupSocialLinks, g)

	_, err = ParseGroup("skills")
	assert.ErrorIs(t, err, ErrUnknownGroup)
}

func TestNormalize(t *testing.T) {
	f := Form{
		Education:   []Education{{School: "MIT"}, {ID: "dup", School: "A"}, {ID: "dup", School: "B"}},
		SocialLinks: nil,
	}

	got := f.Normalize()

	require.Len(t, got.Education, 3)
	ids := map[string]bool{}
	for _, e := range got.Education {
		assert.NotEmpty(t, e.ID)
		ids[e.ID] = true
	}
	assert.Len(t, ids, 3, "identifiers must be unique")
	assert.Equal(t, "dup", got.Education[1].ID)
	assert.Equal(t, []string{"MIT", "A", "B"}, []string{got.Education[0].School, got.Education[1].School, got.Education[2].School})

	require.Len(t, got.SocialLinks, 3)
	assert.Equal(t, "LinkedIn", got.SocialLinks[0].Platform)
	require.Len(t, got.Languages, 1)
	assert.NotEmpty(t, got.Languages[0].ID)

	assert.Empty(t, f.Education[0].ID, "input must not be modified")
}
