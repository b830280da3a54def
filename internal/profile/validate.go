package profile

import (
	"regexp"
	"strings"
)

// Errors maps a field name to its validation message. An empty map means
// the form is valid.
type Errors map[string]string

// Touched records which fields the user has interacted with.
type Touched map[string]bool

// ValidatedFields lists every field a rule exists for.
var ValidatedFields = []string{"name", "email", "bio", "skills", "phone"}

var (
	emailPattern = regexp.MustCompile(`.+@.+\..+`)
	phonePattern = regexp.MustCompile(`^\+?[0-9\-\s]+$`)
)

// Validate runs every rule against f independently and returns the failures.
func Validate(f Form) Errors {
	errs := Errors{}
	if strings.TrimSpace(f.Name) == "" {
		errs["name"] = "Full name is required."
	}
	switch email := strings.TrimSpace(f.Email); {
	case email == "":
		errs["email"] = "Email is required."
	case !emailPattern.MatchString(email):
		errs["email"] = "Invalid email."
	}
	// The load-time placeholder is not an answer.
	if bio := strings.TrimSpace(f.Bio); bio == "" || bio == DefaultBio {
		errs["bio"] = "Bio is required."
	}
	if strings.TrimSpace(f.Skills) == "" {
		errs["skills"] = "At least one skill is required."
	}
	if f.Phone != "" && !phonePattern.MatchString(f.Phone) {
		errs["phone"] = "Invalid phone."
	}
	return errs
}

// Visible returns the subset of e whose fields have been touched.
func (e Errors) Visible(touched Touched) Errors {
	out := Errors{}
	for field, msg := range e {
		if touched[field] {
			out[field] = msg
		}
	}
	return out
}

// Clone returns a copy of t.
func (t Touched) Clone() Touched {
	out := make(Touched, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// TouchAll returns a copy of t with every validated field marked.
func (t Touched) TouchAll() Touched {
	out := t.Clone()
	for _, field := range ValidatedFields {
		out[field] = true
	}
	return out
}
