package profile

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrEntryNotFound is returned when no entry carries the requested id.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrUnknownEntryField is returned when an entry has no field with the given key.
	ErrUnknownEntryField = errors.New("unknown entry field")
	// ErrUnknownGroup is returned for a group name outside education, languages and socialLinks.
	ErrUnknownGroup = errors.New("unknown group")
	// ErrLastEntry is returned when removing would leave a group empty.
	ErrLastEntry = errors.New("cannot remove the last entry")
)

// Entry is a record of a repeatable group. Implementations are value types;
// every method returns a modified copy.
type Entry[T any] interface {
	EntryID() string
	WithID(id string) T
	WithField(key, value string) (T, error)
}

// Group names a repeatable group of a Form.
type Group string

const (
	GroupEducation   Group = "education"
	GroupLanguages   Group = "languages"
	GroupSocialLinks Group = "socialLinks"
)

// ParseGroup maps a group name to a Group.
func ParseGroup(name string) (Group, error) {
	switch g := Group(name); g {
	case GroupEducation, GroupLanguages, GroupSocialLinks:
		return g, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGroup, name)
}

func newEntryID() string {
	return uuid.New().String()
}

// AddEntry appends a copy of blank with a fresh identifier. seq is never
// modified.
func AddEntry[T Entry[T]](seq []T, blank T) []T {
	out := make([]T, len(seq), len(seq)+1)
	copy(out, seq)
	return append(out, blank.WithID(newEntryID()))
}

// RemoveEntry removes the entry with id. It refuses, returning seq and false,
// when id is unknown or when seq holds a single entry.
func RemoveEntry[T Entry[T]](seq []T, id string) ([]T, bool) {
	if !CanRemove(seq) {
		return seq, false
	}
	idx := indexOf(seq, id)
	if idx < 0 {
		return seq, false
	}
	out := make([]T, 0, len(seq)-1)
	out = append(out, seq[:idx]...)
	return append(out, seq[idx+1:]...), true
}

// UpdateEntry replaces a single field of the entry with id.
func UpdateEntry[T Entry[T]](seq []T, id, key, value string) ([]T, error) {
	idx := indexOf(seq, id)
	if idx < 0 {
		return seq, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	updated, err := seq[idx].WithField(key, value)
	if err != nil {
		return seq, err
	}
	out := make([]T, len(seq))
	copy(out, seq)
	out[idx] = updated
	return out, nil
}

// CanRemove reports whether an entry may be removed from seq.
func CanRemove[T any](seq []T) bool {
	return len(seq) > 1
}

func indexOf[T Entry[T]](seq []T, id string) int {
	for i, e := range seq {
		if e.EntryID() == id {
			return i
		}
	}
	return -1
}

func (s SocialLink) EntryID() string { return s.ID }

func (s SocialLink) WithID(id string) SocialLink {
	s.ID = id
	return s
}

func (s SocialLink) WithField(key, value string) (SocialLink, error) {
	switch key {
	case "platform":
		s.Platform = value
	case "url":
		s.URL = value
	default:
		return s, fmt.Errorf("%w: socialLinks.%s", ErrUnknownEntryField, key)
	}
	return s, nil
}

func (e Education) EntryID() string { return e.ID }

func (e Education) WithID(id string) Education {
	e.ID = id
	return e
}

func (e Education) WithField(key, value string) (Education, error) {
	switch key {
	case "school":
		e.School = value
	case "degree":
		e.Degree = value
	case "years":
		e.Years = value
	default:
		return e, fmt.Errorf("%w: education.%s", ErrUnknownEntryField, key)
	}
	return e, nil
}

func (l Language) EntryID() string { return l.ID }

func (l Language) WithID(id string) Language {
	l.ID = id
	return l
}

func (l Language) WithField(key, value string) (Language, error) {
	switch key {
	case "name":
		l.Name = value
	case "level":
		l.Level = value
	default:
		return l, fmt.Errorf("%w: languages.%s", ErrUnknownEntryField, key)
	}
	return l, nil
}

// AddEntry returns a copy of f with a blank entry appended to group, along
// with the new entry's identifier.
func (f Form) AddEntry(group Group) (Form, string, error) {
	out := f.Clone()
	switch group {
	case GroupEducation:
		out.Education = AddEntry(f.Education, Education{})
		return out, out.Education[len(out.Education)-1].ID, nil
	case GroupLanguages:
		out.Languages = AddEntry(f.Languages, Language{})
		return out, out.Languages[len(out.Languages)-1].ID, nil
	case GroupSocialLinks:
		out.SocialLinks = AddEntry(f.SocialLinks, SocialLink{})
		return out, out.SocialLinks[len(out.SocialLinks)-1].ID, nil
	}
	return f, "", fmt.Errorf("%w: %q", ErrUnknownGroup, group)
}

// RemoveEntry returns a copy of f without the entry id of group.
// Removing the only remaining entry yields ErrLastEntry and leaves f as is.
func (f Form) RemoveEntry(group Group, id string) (Form, error) {
	out := f.Clone()
	var ok bool
	switch group {
	case GroupEducation:
		out.Education, ok = RemoveEntry(f.Education, id)
	case GroupLanguages:
		out.Languages, ok = RemoveEntry(f.Languages, id)
	case GroupSocialLinks:
		out.SocialLinks, ok = RemoveEntry(f.SocialLinks, id)
	default:
		return f, fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}
	if !ok {
		if f.groupLen(group) <= 1 {
			return f, ErrLastEntry
		}
		return f, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return out, nil
}

// UpdateEntry returns a copy of f with one field of one group entry replaced.
func (f Form) UpdateEntry(group Group, id, key, value string) (Form, error) {
	out := f.Clone()
	var err error
	switch group {
	case GroupEducation:
		out.Education, err = UpdateEntry(f.Education, id, key, value)
	case GroupLanguages:
		out.Languages, err = UpdateEntry(f.Languages, id, key, value)
	case GroupSocialLinks:
		out.SocialLinks, err = UpdateEntry(f.SocialLinks, id, key, value)
	default:
		return f, fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}
	if err != nil {
		return f, err
	}
	return out, nil
}

func (f Form) groupLen(group Group) int {
	switch group {
	case GroupEducation:
		return len(f.Education)
	case GroupLanguages:
		return len(f.Languages)
	case GroupSocialLinks:
		return len(f.SocialLinks)
	}
	return 0
}

// Normalize gives every entry without an identifier a fresh one and refills
// any empty group with its placeholder rows. Use it on forms that were
// edited as a whole document.
func (f Form) Normalize() Form {
	out := f.Clone()
	out.SocialLinks = withIDs(out.SocialLinks)
	out.Education = withIDs(out.Education)
	out.Languages = withIDs(out.Languages)
	if len(out.SocialLinks) == 0 {
		out.SocialLinks = defaultSocialLinks()
	}
	if len(out.Education) == 0 {
		out.Education = []Education{{ID: newEntryID()}}
	}
	if len(out.Languages) == 0 {
		out.Languages = []Language{{ID: newEntryID()}}
	}
	return out
}

func withIDs[T Entry[T]](seq []T) []T {
	seen := make(map[string]bool, len(seq))
	for i, e := range seq {
		if id := e.EntryID(); id == "" || seen[id] {
			seq[i] = e.WithID(newEntryID())
		}
		seen[seq[i].EntryID()] = true
	}
	return seq
}
