package dbpool

import "net/url"

// RedactURL hides the password of a connection URL so it can be logged or
// attached to an error. Unparseable input is returned as "<invalid url>".
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
