package auth

import "errors"

// Attribute is one entry in the closed set of identity fields that
// backends map their native fields onto.
type Attribute string

const (
	AttrNickname   Attribute = "nickname"
	AttrEmail      Attribute = "email"
	AttrFullname   Attribute = "fullname"
	AttrDOB        Attribute = "dob"
	AttrGender     Attribute = "gender"
	AttrPostalCode Attribute = "postalcode"
	AttrCountry    Attribute = "country"
	AttrLanguage   Attribute = "language"
	AttrTimezone   Attribute = "timezone"
	AttrFirstname  Attribute = "firstname"
	AttrLastname   Attribute = "lastname"
	AttrGPGKeyID   Attribute = "gpg_keyid"
	AttrSSHKey     Attribute = "ssh_key"
)

var (
	ErrUnauthorized          = errors.New("auth: not logged in")
	ErrUnknownAttribute      = errors.New("auth: unknown attribute")
	ErrNotRequestedAttribute = errors.New("auth: attribute was not requested")
	ErrMalformedEmail        = errors.New("auth: malformed email address")
)

// Identity is what a backend produces on successful authentication.
// Exactly one backend owns the identity of a given transaction; the
// orchestrator never merges identities across backends.
type Identity struct {
	Username   string               `json:"username"`
	Attributes map[Attribute]string `json:"attributes,omitempty"`
	Groups     []string             `json:"groups,omitempty"`

	// Completed-agreement URIs, empty for backends without the concept.
	CLAs []string `json:"clas,omitempty"`

	MultiFactor         bool `json:"multi_factor"`
	MultiFactorPhysical bool `json:"multi_factor_physical"`
	PhishingResistant   bool `json:"phishing_resistant"`
}

// Attribute returns a mapped attribute value.
func (id *Identity) Attribute(attr Attribute) (string, error) {
	v, ok := id.Attributes[attr]
	if !ok {
		return "", ErrUnknownAttribute
	}
	return v, nil
}
