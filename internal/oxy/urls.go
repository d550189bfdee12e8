package oxy

import (
	"fmt"
	"net/url"
	"path"
)

// AuthorizeURL builds the hosted web authorize URL for a handshake token:
// {authBaseURL}/authorize?token={token}&redirect_uri={redirectURI}.
// redirectURI is optional; when empty the identity service uses the flow
// without an app callback (e.g. browser-hosted execution).
func AuthorizeURL(authBaseURL, token, redirectURI string) (string, error) {
	u, err := url.Parse(authBaseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse auth base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("auth base URL must be http(s), got %q", authBaseURL)
	}

	u.Path = path.Join(u.Path, "authorize")

	q := url.Values{}
	q.Set("token", token)
	if redirectURI != "" {
		q.Set("redirect_uri", redirectURI)
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""

	return u.String(), nil
}

// DeepLink builds the mobile deep link encoding the handshake token,
// e.g. "oxy://a1B2...". This is the payload presented as a QR code.
func DeepLink(scheme, token string) string {
	return scheme + "://" + token
}
