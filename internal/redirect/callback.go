package redirect

import (
	"log/slog"
	"net/http"
)

// handleCallback handles the authorize redirect:
//  1. Extract session_id / error from query parameters
//  2. Forward the outcome to the completion gate
//  3. Render a result page telling the user to return to the app
//
// A request with neither parameter is not an authorization callback and is
// not forwarded.
func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	slog.Info("authorization callback received",
		"session_id_present", q.Get("session_id") != "",
		"error_present", q.Get("error") != "",
	)

	update, ok := ParseCallbackQuery(q)
	if !ok {
		slog.Debug("ignoring non-authorization callback", // #nosec G706 -- values sanitized via sanitizeLog
			"path", sanitizeLog(r.URL.Path),
		)
		l.renderError(w, "Missing authorization parameters.")
		return
	}

	if l.deliver != nil {
		l.deliver(update)
	}

	if errParam := q.Get("error"); errParam != "" {
		slog.Info("authorization denied via callback", // #nosec G706 -- values sanitized via sanitizeLog
			"error", sanitizeLog(errParam),
		)
		l.renderError(w, "Sign-in was denied. You can close this window.")
		return
	}

	l.renderSuccess(w, "You're signed in. You can close this window and return to the app.")
}
