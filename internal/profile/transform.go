package profile

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	// ErrUnknownField is returned by SetField for names outside the edit schema.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidValue is returned by SetField when a value cannot be converted.
	ErrInvalidValue = errors.New("invalid value")
)

// Defaults applied when the remote profile leaves a field empty.
const (
	DefaultTitle    = "Professional"
	DefaultLocation = "Location not specified"
	DefaultBio      = "No bio available."
)

var defaultPlatforms = []string{"LinkedIn", "GitHub", "Twitter"}

// NewForm returns the form shown before remote data arrives.
func NewForm() Form {
	return Form{
		Title:       DefaultTitle,
		Location:    DefaultLocation,
		SocialLinks: defaultSocialLinks(),
		Education:   []Education{{ID: newEntryID()}},
		Languages:   []Language{{ID: newEntryID()}},
	}
}

func defaultSocialLinks() []SocialLink {
	links := make([]SocialLink, len(defaultPlatforms))
	for i, p := range defaultPlatforms {
		links[i] = SocialLink{ID: newEntryID(), Platform: p}
	}
	return links
}

// ToLocal converts a remote profile into the edit schema. assetBase is the
// store address store-relative image paths are resolved against.
func ToLocal(w Wire, id Identity, assetBase string) Form {
	f := NewForm()
	f.Username = id.Username
	f.Email = id.Email
	f.Name = orDefault(w.FullName, id.Username)
	f.Title = orDefault(w.Headline, DefaultTitle)
	f.Location = orDefault(w.Location, DefaultLocation)
	f.Bio = orDefault(w.Bio, DefaultBio)
	f.Experience = orDefault(w.Experience, "")
	f.Website = orDefault(w.Website, "")
	f.Skills = JoinSkills(w.Skills)
	if w.ImageURL != nil {
		f.Avatar = AbsoluteAssetURL(assetBase, *w.ImageURL)
	}
	if len(w.Education) > 0 {
		f.Education = make([]Education, len(w.Education))
		for i, e := range w.Education {
			f.Education[i] = Education{ID: newEntryID(), School: e.School, Degree: e.Degree, Years: e.Years}
		}
	}
	return f
}

// ToWire converts the edit schema into the save payload.
func ToWire(f Form) WireUpdate {
	edu := make([]EducationEntry, len(f.Education))
	for i, e := range f.Education {
		edu[i] = EducationEntry{School: e.School, Degree: e.Degree, Years: e.Years}
	}
	return WireUpdate{
		Name:       f.Name,
		Title:      f.Title,
		Location:   f.Location,
		Bio:        f.Bio,
		Skills:     SplitSkills(f.Skills),
		Education:  edu,
		Experience: f.Experience,
		Website:    f.Website,
	}
}

// SplitSkills splits a comma-joined skill list, trimming each entry and
// dropping empties. The result is never nil.
func SplitSkills(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// JoinSkills is the inverse of SplitSkills.
func JoinSkills(skills []string) string {
	var kept []string
	for _, s := range skills {
		if s = strings.TrimSpace(s); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, ", ")
}

// AbsoluteAssetURL resolves a store-relative asset path against base.
// Empty paths stay empty and absolute URLs (including data: URLs) are
// returned unchanged.
func AbsoluteAssetURL(base, path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// WireFromUpdate applies u on top of w, producing what the store would
// return after a save. Used by stores without a server-side merge.
func WireFromUpdate(w Wire, u WireUpdate) Wire {
	out := w
	out.FullName = strPtr(u.Name)
	out.Headline = strPtr(u.Title)
	out.Location = strPtr(u.Location)
	out.Bio = strPtr(u.Bio)
	out.Skills = append([]string(nil), u.Skills...)
	out.Education = append([]EducationEntry(nil), u.Education...)
	out.Experience = strPtr(u.Experience)
	out.Website = strPtr(u.Website)
	return out
}

// SetField assigns a scalar field by its edit-schema name.
func (f Form) SetField(name, value string) (Form, error) {
	switch name {
	case "username":
		f.Username = value
	case "name":
		f.Name = value
	case "title":
		f.Title = value
	case "location":
		f.Location = value
	case "email":
		f.Email = value
	case "phone":
		f.Phone = value
	case "bio":
		f.Bio = value
	case "skills":
		f.Skills = value
	case "experience":
		f.Experience = value
	case "website":
		f.Website = value
	case "connections", "mutualConnections":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return f, fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidValue, name)
		}
		if name == "connections" {
			f.Connections = n
		} else {
			f.MutualConnections = n
		}
	case "avatar":
		return f, fmt.Errorf("%w: avatar is set by upload", ErrUnknownField)
	default:
		return f, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return f.Clone(), nil
}

func orDefault(p *string, def string) string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return def
	}
	return *p
}

func strPtr(s string) *string {
	return &s
}
