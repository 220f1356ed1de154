package accounts

import (
	"net/url"
	"strconv"
	"strings"
)

// InviteFragment holds the parameters the identity provider appends to an
// invite link's URL fragment.
type InviteFragment struct {
	AccessToken  string
	RefreshToken string
	Type         string
	Code         string
	Error        string
	ExpiresIn    int
}

// InviteLinkType is the only fragment type accepted by the invite flow.
const InviteLinkType = "invite"

// ParseInviteFragment decodes the fragment portion of an invite link. It
// accepts either the raw fragment or one with a leading "#".
func ParseInviteFragment(fragment string) (InviteFragment, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(fragment), "#")

	values, err := url.ParseQuery(raw)
	if err != nil {
		return InviteFragment{}, ErrInvalidInviteLink
	}

	f := InviteFragment{
		AccessToken:  values.Get("access_token"),
		RefreshToken: values.Get("refresh_token"),
		Type:         values.Get("type"),
		Code:         values.Get("code"),
		Error:        values.Get("error"),
	}
	if v := values.Get("expires_in"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.ExpiresIn = n
		}
	}
	return f, nil
}

// Validate rejects fragments without an access token, with the wrong
// type, with a provider-reported error, or without an auth code to
// exchange.
func (f InviteFragment) Validate() error {
	if f.Error != "" {
		return ErrInvalidInviteLink.Clone().
			WithMetadata(map[string]any{"provider_error": f.Error})
	}
	if f.AccessToken == "" || f.Type != InviteLinkType {
		return ErrInvalidInviteLink
	}
	if f.Code == "" {
		return ErrInvalidInviteLink.Clone().
			WithMetadata(map[string]any{"reason": "missing auth code"})
	}
	return nil
}
