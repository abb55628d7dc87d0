package relay

import (
	"regexp"
	"strings"

	"github.com/teslashibe/go-vocalix/pkg/tools"
)

// Filler is spoken when a reply holds nothing but directives.
const Filler = "As you wish, Sir."

var openURLDirective = regexp.MustCompile(regexp.QuoteMeta(tools.OpenURLPrefix) + `(https?://[^\s]+)`)

// ExtractDirectives removes every open-URL directive from reply and
// returns the text left to speak together with the URLs in order of
// appearance. The URL ends at the first whitespace.
func ExtractDirectives(reply string) (string, []string) {
	matches := openURLDirective.FindAllStringSubmatch(reply, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(reply), nil
	}

	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		urls = append(urls, strings.TrimSpace(m[1]))
	}
	spoken := openURLDirective.ReplaceAllString(reply, "")
	return strings.Join(strings.Fields(spoken), " "), urls
}

// SpokenText returns the text to synthesize for reply.
func SpokenText(reply string) (string, []string) {
	spoken, urls := ExtractDirectives(reply)
	if spoken == "" {
		spoken = Filler
	}
	return spoken, urls
}
