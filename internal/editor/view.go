package editor

import (
	"strings"
	"time"

	"github.com/kalambet/profedit/internal/profile"
	"github.com/kalambet/profedit/internal/upload"
)

// View is a snapshot of everything the edit screen renders.
type View struct {
	Phase Phase        `json:"phase"`
	Form  profile.Form `json:"form"`
	// Errors holds only the errors of touched fields.
	Errors    profile.Errors  `json:"errors"`
	Touched   profile.Touched `json:"touched"`
	CanRemove map[string]bool `json:"canRemove"`
	Upload    upload.Status   `json:"upload"`
	Save      SaveState       `json:"save"`
	LoadError string          `json:"loadError,omitempty"`
	SaveError string          `json:"saveError,omitempty"`
	Navigate  Navigate        `json:"navigate,omitempty"`
	// Stale is set when the form was loaded from the local fallback snapshot.
	Stale   bool      `json:"stale,omitempty"`
	SavedAt time.Time `json:"savedAt,omitzero"`
}

// ProfileView is the read-only rendering of a profile.
type ProfileView struct {
	Username          string               `json:"username" yaml:"username"`
	Name              string               `json:"name" yaml:"name"`
	Title             string               `json:"title" yaml:"title"`
	Location          string               `json:"location" yaml:"location"`
	Email             string               `json:"email" yaml:"email"`
	Phone             string               `json:"phone,omitempty" yaml:"phone,omitempty"`
	Avatar            string               `json:"avatar,omitempty" yaml:"avatar,omitempty"`
	Bio               string               `json:"bio" yaml:"bio"`
	Skills            []string             `json:"skills" yaml:"skills"`
	Experience        string               `json:"experience,omitempty" yaml:"experience,omitempty"`
	Website           string               `json:"website,omitempty" yaml:"website,omitempty"`
	SocialLinks       []profile.SocialLink `json:"socialLinks" yaml:"socialLinks"`
	Education         []profile.Education  `json:"education" yaml:"education"`
	Languages         []profile.Language   `json:"languages" yaml:"languages"`
	Connections       int                  `json:"connections" yaml:"connections"`
	MutualConnections int                  `json:"mutualConnections" yaml:"mutualConnections"`
}

// NewProfileView renders f for display. Social links without a URL and
// blank education and language rows are left out.
func NewProfileView(f profile.Form) ProfileView {
	v := ProfileView{
		Username:          f.Username,
		Name:              f.Name,
		Title:             f.Title,
		Location:          f.Location,
		Email:             f.Email,
		Phone:             f.Phone,
		Avatar:            f.Avatar,
		Bio:               f.Bio,
		Skills:            profile.SplitSkills(f.Skills),
		Experience:        f.Experience,
		Website:           f.Website,
		SocialLinks:       []profile.SocialLink{},
		Education:         []profile.Education{},
		Languages:         []profile.Language{},
		Connections:       f.Connections,
		MutualConnections: f.MutualConnections,
	}
	for _, l := range f.SocialLinks {
		if strings.TrimSpace(l.URL) != "" {
			v.SocialLinks = append(v.SocialLinks, l)
		}
	}
	for _, e := range f.Education {
		if strings.TrimSpace(e.School+e.Degree+e.Years) != "" {
			v.Education = append(v.Education, e)
		}
	}
	for _, l := range f.Languages {
		if strings.TrimSpace(l.Name) != "" {
			v.Languages = append(v.Languages, l)
		}
	}
	return v
}
