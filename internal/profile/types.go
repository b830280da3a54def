package profile

// Identity is the minimal account record returned alongside a profile.
type Identity struct {
	ID       int    `json:"id,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// EducationEntry is one education record as the remote store persists it.
type EducationEntry struct {
	School string `json:"school"`
	Degree string `json:"degree"`
	Years  string `json:"years"`
}

// Wire is the profile as the remote store transmits it. Every field may be
// absent; image_url is a store-relative path when set.
type Wire struct {
	FullName   *string          `json:"full_name,omitempty"`
	Headline   *string          `json:"headline,omitempty"`
	Location   *string          `json:"location,omitempty"`
	Bio        *string          `json:"bio,omitempty"`
	Skills     []string         `json:"skills,omitempty"`
	Education  []EducationEntry `json:"education,omitempty"`
	Experience *string          `json:"experience,omitempty"`
	Website    *string          `json:"website,omitempty"`
	ImageURL   *string          `json:"image_url,omitempty"`
}

// WireUpdate is the save payload. It is intentionally narrower than Form:
// languages, social links, contact details and connection counts are not
// accepted by the store.
type WireUpdate struct {
	Name       string           `json:"name"`
	Title      string           `json:"title"`
	Location   string           `json:"location"`
	Bio        string           `json:"bio"`
	Skills     []string         `json:"skills"`
	Education  []EducationEntry `json:"education"`
	Experience string           `json:"experience"`
	Website    string           `json:"website"`
}

// Form is the fully-populated edit schema the presentation layer binds to.
type Form struct {
	Username          string       `json:"username" yaml:"username"`
	Name              string       `json:"name" yaml:"name"`
	Title             string       `json:"title" yaml:"title"`
	Location          string       `json:"location" yaml:"location"`
	Email             string       `json:"email" yaml:"email"`
	Phone             string       `json:"phone" yaml:"phone"`
	Avatar            string       `json:"avatar" yaml:"avatar"`
	Bio               string       `json:"bio" yaml:"bio"`
	Skills            string       `json:"skills" yaml:"skills"`
	Experience        string       `json:"experience" yaml:"experience"`
	Website           string       `json:"website" yaml:"website"`
	SocialLinks       []SocialLink `json:"socialLinks" yaml:"socialLinks"`
	Education         []Education  `json:"education" yaml:"education"`
	Languages         []Language   `json:"languages" yaml:"languages"`
	Connections       int          `json:"connections" yaml:"connections"`
	MutualConnections int          `json:"mutualConnections" yaml:"mutualConnections"`
}

// SocialLink is one entry of the social-links group.
type SocialLink struct {
	ID       string `json:"id" yaml:"id"`
	Platform string `json:"platform" yaml:"platform"`
	URL      string `json:"url" yaml:"url"`
}

// Education is one entry of the education group.
type Education struct {
	ID     string `json:"id" yaml:"id"`
	School string `json:"school" yaml:"school"`
	Degree string `json:"degree" yaml:"degree"`
	Years  string `json:"years" yaml:"years"`
}

// Language is one entry of the languages group.
type Language struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Level string `json:"level" yaml:"level"`
}

// Clone returns a deep copy of f.
func (f Form) Clone() Form {
	cp := f
	if f.SocialLinks != nil {
		cp.SocialLinks = make([]SocialLink, len(f.SocialLinks))
		copy(cp.SocialLinks, f.SocialLinks)
	}
	if f.Education != nil {
		cp.Education = make([]Education, len(f.Education))
		copy(cp.Education, f.Education)
	}
	if f.Languages != nil {
		cp.Languages = make([]Language, len(f.Languages))
		copy(cp.Languages, f.Languages)
	}
	return cp
}
