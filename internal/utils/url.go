package utils

import (
	"net/url"
	"strings"
)

// HostFromURI returns the host part of uri without a leading "www.", or uri itself when
// it cannot be parsed into something with a host.
func HostFromURI(uri string) string {
	trimmed := strings.TrimSpace(uri)
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return trimmed
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
