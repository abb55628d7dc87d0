package tools

import (
	"context"
	"net/url"
	"strings"
)

// OpenURLPrefix marks an open-URL directive in reply text.
const OpenURLPrefix = "ACTION_OPEN_URL::"

func openWebsite(_ context.Context, args map[string]any) (string, error) {
	target := strings.TrimSpace(stringArg(args, "url"))
	if target == "" {
		target = strings.TrimSpace(stringArg(args, "website"))
	}
	if target == "" {
		return "Please tell me which website to open.", nil
	}
	return OpenURLPrefix + NormalizeURL(target), nil
}

// NormalizeURL turns a site name or bare host into an https URL.
// "netflix" becomes https://www.netflix.com and "docs.go.dev/doc" becomes
// https://docs.go.dev/doc.
func NormalizeURL(target string) string {
	if u, err := url.Parse(target); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return target
	}

	host := strings.ToLower(strings.Join(strings.Fields(target), ""))
	if !strings.Contains(host, ".") {
		host = "www." + host + ".com"
	}
	return "https://" + host
}
