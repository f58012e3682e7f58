// Package safeurl holds the URL checks shared by probing and playlist loading.
package safeurl

import "net/url"

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https and a host.
// Used to reject file://, ftp://, rtmp:// and other schemes before any request is made.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return false
	}
	s := parsed.Scheme
	return s == "http" || s == "https"
}

// Redact hides credentials in u for logging: userinfo is masked and every
// query value is replaced. Provider playlist URLs usually carry the account
// in get.php?username=..&password=.. form.
func Redact(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return u
	}
	if parsed.User != nil {
		parsed.User = url.User("xxx")
	}
	if parsed.RawQuery != "" {
		q := parsed.Query()
		for k := range q {
			q.Set(k, "xxx")
		}
		parsed.RawQuery = q.Encode()
	}
	return parsed.String()
}
