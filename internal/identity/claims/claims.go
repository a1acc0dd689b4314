// Package claims extracts a typed external-identity claim set from the
// loosely-typed claim bag handed over by an upstream OIDC/OAuth integration.
// The upstream boundary has already validated the provider token; nothing here
// talks to a provider.
package claims

import (
	"errors"
	"strings"
)

// External is the typed claim set used by identity reconciliation.
type External struct {
	Provider   string
	ExternalID string // provider subject
	Email      string
	Name       string
	AvatarURL  string
}

// ErrMissingSubject is returned when no subject claim can be found in the bag.
var ErrMissingSubject = errors.New("claims: missing subject")

// Fallback key lists per field, in probe order. Providers disagree on claim
// names; first non-empty string wins.
var (
	subjectKeys = []string{"sub", "subject", "uid", "user_id", "id"}
	emailKeys   = []string{"email", "preferred_email", "upn"}
	nameKeys    = []string{"name", "full_name", "display_name", "given_name"}
	avatarKeys  = []string{"picture", "avatar_url", "avatar", "photo_url"}
)

// Extract maps a generic string-keyed claim bag to an External record using
// the ordered fallback lists above. provider names the issuing integration
// (e.g. "google"). Pure: no I/O, no transport types.
func Extract(provider string, bag map[string]any) (External, error) {
	out := External{Provider: strings.TrimSpace(strings.ToLower(provider))}
	out.ExternalID = firstString(bag, subjectKeys)
	if out.ExternalID == "" {
		return External{}, ErrMissingSubject
	}
	out.Email = strings.TrimSpace(strings.ToLower(firstString(bag, emailKeys)))
	out.Name = strings.TrimSpace(firstString(bag, nameKeys))
	out.AvatarURL = strings.TrimSpace(firstString(bag, avatarKeys))
	return out, nil
}

func firstString(bag map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := bag[k]
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
