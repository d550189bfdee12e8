package redirect

import (
	"net/url"

	"github.com/oxyhq/oxysign/internal/oxy"
)

// ParseCallbackQuery maps callback query parameters to an auth update.
// A session_id parameter means the user authorized the request; an error
// parameter means they denied it. URLs carrying neither are not
// authorization callbacks at all and yield ok == false — they must be
// ignored, not treated as an empty update.
func ParseCallbackQuery(q url.Values) (u oxy.AuthUpdate, ok bool) {
	if sid := q.Get("session_id"); sid != "" {
		return oxy.AuthUpdate{Status: oxy.StatusAuthorized, SessionID: sid}, true
	}
	if q.Get("error") != "" {
		return oxy.AuthUpdate{Status: oxy.StatusCancelled}, true
	}
	return oxy.AuthUpdate{}, false
}

// ParseCallbackURL is ParseCallbackQuery over a full URL string, used for
// OS-level launch URLs.
func ParseCallbackURL(raw string) (oxy.AuthUpdate, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return oxy.AuthUpdate{}, false
	}
	return ParseCallbackQuery(u.Query())
}
