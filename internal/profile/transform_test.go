package profile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

var ignoreIDs = cmp.Options{
	cmpopts.IgnoreFields(SocialLink{}, "ID"),
	cmpopts.IgnoreFields(Education{}, "ID"),
	cmpopts.IgnoreFields(Language{}, "ID"),
}

func TestToLocal_EmptyWireIsFullyPopulated(t *testing.T) {
	f := ToLocal(Wire{}, Identity{Username: "jdoe", Email: "jdoe@example.com"}, "http://store")

	want := Form{
		Username:    "jdoe",
		Name:        "jdoe",
		Title:       DefaultTitle,
		Location:    DefaultLocation,
		Email:       "jdoe@example.com",
		Bio:         DefaultBio,
		SocialLinks: []SocialLink{{Platform: "LinkedIn"}, {Platform: "GitHub"}, {Platform: "Twitter"}},
		Education:   []Education{{}},
		Languages:   []Language{{}},
	}
	if diff := cmp.Diff(want, f, ignoreIDs); diff != "" {
		t.Errorf("ToLocal mismatch (-want +got):\n%s", diff)
	}

	for _, e := range f.Education {
		assert.NotEmpty(t, e.ID)
	}
	for _, l := range f.Languages {
		assert.NotEmpty(t, l.ID)
	}
	for _, s := range f.SocialLinks {
		assert.NotEmpty(t, s.ID)
	}
}

func TestToLocal_FullWire(t *testing.T) {
	w := Wire{
		FullName:   ptr("Jane Doe"),
		Headline:   ptr("Staff Engineer"),
		Location:   ptr("Lisbon"),
		Bio:        ptr("Builds things."),
		Skills:     []string{"Go", "Rust"},
		Education:  []EducationEntry{{School: "MIT", Degree: "BSc", Years: "2010 - 2014"}},
		Experience: ptr("10 years"),
		Website:    ptr("https://jane.dev"),
		ImageURL:   ptr("/uploads/profile_1.png"),
	}
	f := ToLocal(w, Identity{Username: "jane", Email: "jane@example.com"}, "http://localhost:5000/")

	assert.Equal(t, "Jane Doe", f.Name)
	assert.Equal(t, "Staff Engineer", f.Title)
	assert.Equal(t, "Lisbon", f.Location)
	assert.Equal(t, "Builds things.", f.Bio)
	assert.Equal(t, "Go, Rust", f.Skills)
	assert.Equal(t, "10 years", f.Experience)
	assert.Equal(t, "https://jane.dev", f.Website)
	assert.Equal(t, "http://localhost:5000/uploads/profile_1.png", f.Avatar)
	require.Len(t, f.Education, 1)
	assert.Equal(t, "MIT", f.Education[0].School)
}

func TestToLocal_BlankStringsUseDefaults(t *testing.T) {
	f := ToLocal(Wire{Headline: ptr("  "), Bio: ptr(""), Skills: []string{}}, Identity{Username: "u"}, "")
	assert.Equal(t, DefaultTitle, f.Title)
	assert.Equal(t, DefaultBio, f.Bio)
	assert.Equal(t, "", f.Skills)
	assert.Equal(t, "", f.Avatar)
}

func TestSkillsRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		wire []string
		want []string
	}{
		{"single delimited entry", []string{"Go,  Rust ,,TypeScript"}, []string{"Go", "Rust", "TypeScript"}},
		{"separate entries", []string{" Go", "", "Rust ", "   ", "TypeScript"}, []string{"Go", "Rust", "TypeScript"}},
		{"empty", nil, []string{}},
		{"whitespace only", []string{" , ,"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ToWire(ToLocal(Wire{Skills: tc.wire}, Identity{}, "")).Skills
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestToWire_NarrowPayload(t *testing.T) {
	f := NewForm()
	f.Name = "Jane"
	f.Phone = "+1 555"
	f.Skills = "Go"
	f.Education[0].School = "MIT"
	f.Connections = 12

	u := ToWire(f)
	assert.Equal(t, "Jane", u.Name)
	assert.Equal(t, []string{"Go"}, u.Skills)
	assert.Equal(t, []EducationEntry{{School: "MIT"}}, u.Education)
}

func TestAbsoluteAssetURL(t *testing.T) {
	cases := []struct {
		base, path, want string
	}{
		{"http://store", "", ""},
		{"http://store", "/uploads/a.png", "http://store/uploads/a.png"},
		{"http://store/", "uploads/a.png", "http://store/uploads/a.png"},
		{"http://store", "https://cdn.example.com/a.png", "https://cdn.example.com/a.png"},
		{"http://store", "data:image/png;base64,AAAA", "data:image/png;base64,AAAA"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, AbsoluteAssetURL(tc.base, tc.path), "base=%q path=%q", tc.base, tc.path)
	}
}

func TestSetField(t *testing.T) {
	f := NewForm()

	f, err := f.SetField("bio", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", f.Bio)

	f, err = f.SetField("connections", "42")
	require.NoError(t, err)
	assert.Equal(t, 42, f.Connections)

	_, err = f.SetField("connections", "lots")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = f.SetField("avatar", "http://x")
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = f.SetField("nope", "x")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestWireFromUpdate(t *testing.T) {
	w := Wire{ImageURL: ptr("/uploads/a.png"), Bio: ptr("old")}
	out := WireFromUpdate(w, WireUpdate{Name: "Jane", Bio: "new", Skills: []string{"Go"}})

	require.NotNil(t, out.ImageURL)
	assert.Equal(t, "/uploads/a.png", *out.ImageURL)
	assert.Equal(t, "new", *out.Bio)
	assert.Equal(t, "Jane", *out.FullName)
	assert.Equal(t, []string{"Go"}, out.Skills)
	assert.Equal(t, "old", *w.Bio)
}
