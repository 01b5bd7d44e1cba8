// Package security validates user-supplied identifiers and keeps
// credentials out of log lines and error chains.
package security

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"bist-sentinel/internal/errors"
)

// sensitiveParams lists query parameters whose values are credentials.
var sensitiveParams = map[string]bool{
	"apikey":  true,
	"api_key": true,
	"token":   true,
	"key":     true,
	"secret":  true,
}

// sensitivePatterns match credential material in free text. The
// assignment form covers config echoes and wrapped errors, the
// colon form covers Telegram bot tokens, the bare form covers
// vendor API keys pasted raw.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key|access[_-]?token|auth[_-]?token|bot[_-]?token|refresh[_-]?key|bearer|password)[=:\s]+["']?([A-Za-z0-9_\-\.]{8,})["']?`),
	regexp.MustCompile(`\b\d{8,10}:[A-Za-z0-9_-]{35}\b`),
	regexp.MustCompile(`\b[A-Za-z0-9]{32,}\b`),
}

var botPathPattern = regexp.MustCompile(`/bot([^/\s]+)`)

// RedactURL masks credential material inside a URL so it can be
// logged: sensitive query parameter values and Telegram bot path
// segments are reduced to a masked form. Unparseable input falls
// back to pattern masking.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return MaskSensitive(raw)
	}

	q := u.Query()
	changed := false
	for name, vals := range q {
		if !sensitiveParams[strings.ToLower(name)] {
			continue
		}
		for i, v := range vals {
			vals[i] = MaskCredential(v)
		}
		q[name] = vals
		changed = true
	}
	if changed {
		u.RawQuery = q.Encode()
	}

	if strings.Contains(u.Path, "/bot") {
		u.Path = botPathPattern.ReplaceAllStringFunc(u.Path, func(match string) string {
			return "/bot" + MaskCredential(strings.TrimPrefix(match, "/bot"))
		})
	}

	return u.String()
}

// RedactError strips credential material from an error while keeping
// the cause chain intact. Transport failures from net/http carry the
// full request URL, API key included, so every error that crosses
// from an HTTP client into logs or notifications passes through here.
func RedactError(err error) error {
	if err == nil {
		return nil
	}

	var uerr *url.Error
	if errors.As(err, &uerr) {
		return &url.Error{Op: uerr.Op, URL: RedactURL(uerr.URL), Err: uerr.Err}
	}

	if ContainsSensitiveData(err.Error()) {
		return fmt.Errorf("%s", MaskSensitive(err.Error()))
	}

	return err
}

// MaskSensitive masks credential patterns in free text. Assignment
// forms keep their field name, only the value is masked.
func MaskSensitive(input string) string {
	result := input

	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if parts := strings.SplitN(match, "=", 2); len(parts) == 2 {
				return parts[0] + "=" + MaskCredential(strings.Trim(parts[1], "\"' "))
			}
			if parts := strings.SplitN(match, ": ", 2); len(parts) == 2 {
				return parts[0] + ": " + MaskCredential(strings.Trim(parts[1], "\"' "))
			}
			return MaskCredential(match)
		})
	}

	return result
}

// MaskCredential masks a credential value for display, keeping just
// enough of the ends to recognize which key it was.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// ContainsSensitiveData reports whether a string matches any known
// credential pattern.
func ContainsSensitiveData(input string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(input) {
			return true
		}
	}
	return false
}
