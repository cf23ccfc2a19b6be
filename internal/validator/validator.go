// Package validator checks account credentials before anything is persisted.
//
// Each field owns an ordered list of rules. A rule is a pure predicate plus
// the message to report when it fails. Validate runs every rule of every
// present field and aggregates all failures, so a client learns about every
// problem in one round trip instead of fixing them one at a time.
//
// Uniqueness is deliberately NOT checked here: it belongs to the store, which
// enforces it with unique indexes (see repository/sqlite/account.go). A
// request can therefore pass validation and still fail at persistence.
package validator

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sakif/account-scaffold/internal/apperror"
)

// Kind classifies a validation failure.
type Kind int

const (
	MissingField Kind = iota
	Blank
	InvalidFormat
	Forbidden
	TooShort
	TooLong
)

func (k Kind) String() string {
	switch k {
	case MissingField:
		return "missing_field"
	case Blank:
		return "blank"
	case InvalidFormat:
		return "invalid_format"
	case Forbidden:
		return "forbidden"
	case TooShort:
		return "too_short"
	case TooLong:
		return "too_long"
	}
	return "unknown"
}

// Field names, as they appear in request bodies and error maps.
const (
	FieldUsername = "username"
	FieldEmail    = "email"
	FieldPassword = "password"
)

// Limits and messages.
const (
	MaxUsernameLength = 30
	MaxEmailLength    = 254
	MinPasswordLength = 8

	MsgRequired        = "This field is required."
	MsgBlank           = "This field may not be blank."
	MsgInvalidUsername = "Enter a valid username."
	MsgInvalidEmail    = "Enter a valid email address."
	MsgForbiddenName   = "Username not allowed."
)

// DefaultBlacklist holds usernames that collide with route segments.
var DefaultBlacklist = []string{"me"}

// usernamePattern: letters, digits and @ . + - _ only.
var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.@+-]+$`)

// FieldError is a single failed rule.
type FieldError struct {
	Field   string
	Kind    Kind
	Message string
}

// Result is the outcome of one validation pass.
type Result struct {
	errs []FieldError
}

// OK reports whether no rule failed.
func (r Result) OK() bool { return len(r.errs) == 0 }

// Errors returns the failures in the order they were found.
func (r Result) Errors() []FieldError { return r.errs }

// Has reports whether field failed with the given kind.
func (r Result) Has(field string, kind Kind) bool {
	for _, e := range r.errs {
		if e.Field == field && e.Kind == kind {
			return true
		}
	}
	return false
}

// Err returns the failures as apperror.FieldErrors, or nil when OK.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	fe := apperror.FieldErrors{}
	for _, e := range r.errs {
		fe.Add(e.Field, e.Message)
	}
	return fe
}

func (r *Result) add(field string, kind Kind, msg string) {
	r.errs = append(r.errs, FieldError{Field: field, Kind: kind, Message: msg})
}

// Credentials are the raw registration fields. A nil pointer means the field
// was absent from the request.
type Credentials struct {
	Username *string
	Email    *string
	Password *string
}

// Trimmed returns c with surrounding whitespace removed from username and
// email. The password is kept exactly as typed.
func (c Credentials) Trimmed() Credentials {
	return Credentials{Username: Trim(c.Username), Email: Trim(c.Email), Password: c.Password}
}

// Trim returns a pointer to the whitespace-trimmed value, or nil for nil.
func Trim(value *string) *string {
	if value == nil {
		return nil
	}
	t := strings.TrimSpace(*value)
	return &t
}

// rule is one predicate on a field value. ok returns true when the value passes.
type rule struct {
	kind Kind
	msg  string
	ok   func(string) bool
}

// Validator holds the per-field rule lists.
type Validator struct {
	username []rule
	email    []rule
	password []rule
}

// New builds a Validator. A nil blacklist means DefaultBlacklist.
func New(blacklist []string) *Validator {
	if blacklist == nil {
		blacklist = DefaultBlacklist
	}
	banned := make(map[string]struct{}, len(blacklist))
	for _, name := range blacklist {
		banned[name] = struct{}{}
	}

	return &Validator{
		username: []rule{
			{TooLong, maxCharsMessage(MaxUsernameLength), func(s string) bool {
				return utf8.RuneCountInString(s) <= MaxUsernameLength
			}},
			{InvalidFormat, MsgInvalidUsername, usernamePattern.MatchString},
			{Forbidden, MsgForbiddenName, func(s string) bool {
				_, bad := banned[s]
				return !bad
			}},
		},
		email: []rule{
			{TooLong, maxCharsMessage(MaxEmailLength), func(s string) bool {
				return utf8.RuneCountInString(s) <= MaxEmailLength
			}},
			{InvalidFormat, MsgInvalidEmail, ValidEmail},
		},
		password: []rule{
			{TooShort, minCharsMessage(MinPasswordLength), func(s string) bool {
				return utf8.RuneCountInString(s) >= MinPasswordLength
			}},
		},
	}
}

// Validate checks a registration request. All three fields are required.
func (v *Validator) Validate(c Credentials) Result {
	var r Result
	v.field(&r, FieldUsername, c.Username, true, v.username)
	v.field(&r, FieldEmail, c.Email, true, v.email)
	v.field(&r, FieldPassword, c.Password, true, v.password)
	return r
}

// ValidateProfile checks a profile update. Absent fields are skipped unless
// listed in required (a full PUT requires username and email).
func (v *Validator) ValidateProfile(username, email *string, required bool) Result {
	var r Result
	v.field(&r, FieldUsername, username, required, v.username)
	v.field(&r, FieldEmail, email, required, v.email)
	return r
}

// ValidateLogin only checks that both login fields are present and not
// blank. Format rules do not apply: a malformed username simply fails to
// authenticate.
func (v *Validator) ValidateLogin(username, password *string) Result {
	var r Result
	v.field(&r, FieldUsername, username, true, nil)
	v.field(&r, FieldPassword, password, true, nil)
	return r
}

// ValidatePassword runs only the password rules.
func (v *Validator) ValidatePassword(password string) Result {
	var r Result
	v.field(&r, FieldPassword, &password, true, v.password)
	return r
}

func (v *Validator) field(r *Result, name string, value *string, required bool, rules []rule) {
	if value == nil {
		if required {
			r.add(name, MissingField, MsgRequired)
		}
		return
	}
	if strings.TrimSpace(*value) == "" {
		r.add(name, Blank, MsgBlank)
		return
	}
	for _, rl := range rules {
		if !rl.ok(*value) {
			r.add(name, rl.kind, rl.msg)
		}
	}
}
