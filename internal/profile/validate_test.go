package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validForm() Form {
	f := NewForm()
	f.Name = "Jane Doe"
	f.Email = "jane@example.com"
	f.Bio = "Engineer."
	f.Skills = "Go, Rust"
	f.Phone = "+1 555-123-4567"
	return f
}

func TestValidate_ValidForm(t *testing.T) {
	assert.Empty(t, Validate(validForm()))
}

func TestValidate_ReportsExactlyFailingFields(t *testing.T) {
	f := validForm()
	f.Email = "bad"
	f.Bio = ""
	f.Skills = ""

	errs := Validate(f)
	assert.Equal(t, Errors{
		"email":  "Invalid email.",
		"bio":    "Bio is required.",
		"skills": "At least one skill is required.",
	}, errs)
}

func TestValidate_Rules(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Form)
		field  string
		msg    string
	}{
		{"blank name", func(f *Form) { f.Name = "   " }, "name", "Full name is required."},
		{"missing email", func(f *Form) { f.Email = "" }, "email", "Email is required."},
		{"email without dot", func(f *Form) { f.Email = "a@b" }, "email", "Invalid email."},
		{"placeholder bio", func(f *Form) { f.Bio = DefaultBio }, "bio", "Bio is required."},
		{"whitespace skills", func(f *Form) { f.Skills = "  " }, "skills", "At least one skill is required."},
		{"letters in phone", func(f *Form) { f.Phone = "call me" }, "phone", "Invalid phone."},
		{"double plus", func(f *Form) { f.Phone = "++1" }, "phone", "Invalid phone."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := validForm()
			tc.mutate(&f)
			errs := Validate(f)
			assert.Len(t, errs, 1)
			assert.Equal(t, tc.msg, errs[tc.field])
		})
	}
}

func TestValidate_EmptyPhoneIsAllowed(t *testing.T) {
	f := validForm()
	f.Phone = ""
	assert.Empty(t, Validate(f))
}

func TestErrorsVisible(t *testing.T) {
	errs := Errors{"bio": "Bio is required.", "email": "Email is required."}

	assert.Empty(t, errs.Visible(nil))
	assert.Equal(t, Errors{"bio": "Bio is required."}, errs.Visible(Touched{"bio": true}))
	assert.Equal(t, errs, errs.Visible(Touched{}.TouchAll()))
}

func TestTouchAllDoesNotMutate(t *testing.T) {
	orig := Touched{"bio": true}
	all := orig.TouchAll()

	assert.Len(t, orig, 1)
	for _, f := range ValidatedFields {
		assert.True(t, all[f], f)
	}
}
