package secret

import (
	"net/url"
	"strings"
)

// Mask hides most of s. Up to 5 characters are fully masked; up to 20 keep
// the first and last character; longer values keep the first 3 and last 1.
func Mask(s string) string {
	n := len(s)
	switch {
	case n == 0:
		return ""
	case n <= 5:
		return strings.Repeat("*", n)
	case n <= 20:
		return s[:1] + strings.Repeat("*", n-2) + s[n-1:]
	}
	return s[:3] + strings.Repeat("*", n-4) + s[n-1:]
}

// RedactURL masks the password and sentinel_password of a connection URL
// so it can be logged. Values without a scheme are returned unchanged.
func RedactURL(raw string) string {
	if !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Mask(raw)
	}
	userinfo := ""
	if u.User != nil {
		userinfo = u.User.String()
		if pw, ok := u.User.Password(); ok {
			// url.Userinfo escapes '*', so the masked part is spliced in as text.
			userinfo = url.User(u.User.Username()).String() + ":" + Mask(pw)
		}
		u.User = nil
	}
	q := u.Query()
	if v := q.Get("sentinel_password"); v != "" {
		q.Set("sentinel_password", Mask(v))
		u.RawQuery = q.Encode()
	}
	out := u.String()
	if userinfo == "" {
		return out
	}
	prefix := u.Scheme + "://"
	if !strings.HasPrefix(out, prefix) {
		return out
	}
	return prefix + userinfo + "@" + out[len(prefix):]
}
