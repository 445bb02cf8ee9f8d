// Package text normalizes user song queries and classifies media URLs.
package text

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const timestampMarker = "&t="

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Query is a normalized song request.
type Query struct {
	Text       string
	IsURL      bool
	IsPlaylist bool
	PlaylistID string
}

type Parser struct{}

// NewParser creates a query parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse normalizes raw command text into a Query.
func (p *Parser) Parse(raw string) Query {
	q := Query{Text: p.normalizeText(raw)}

	if !IsURL(q.Text) {
		return q
	}

	q.IsURL = true
	q.Text = StripTimestamp(q.Text)
	q.IsPlaylist = IsPlaylist(q.Text)
	if q.IsPlaylist {
		q.PlaylistID = PlaylistID(q.Text)
	}

	return q
}

func (p *Parser) normalizeText(text string) string {
	text = norm.NFKC.String(text)
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// IsURL reports whether s is an absolute http(s) URL with a host.
func IsURL(s string) bool {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	if strings.ContainsAny(s, " \t\n") {
		return false
	}

	u, err := url.Parse(s)
	if err != nil {
		return false
	}

	return u.Host != ""
}

// StripTimestamp drops a "&t=" start offset and everything after it.
func StripTimestamp(rawURL string) string {
	if idx := strings.Index(rawURL, timestampMarker); idx != -1 {
		return rawURL[:idx]
	}
	return rawURL
}

// IsPlaylist reports whether rawURL points at a playlist.
func IsPlaylist(rawURL string) bool {
	return IsURL(rawURL) && strings.Contains(rawURL, "list")
}

// PlaylistID returns the value of the list parameter, or "" if there is none.
func PlaylistID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err == nil {
		if id := u.Query().Get("list"); id != "" {
			return id
		}
	}

	_, after, found := strings.Cut(rawURL, "list=")
	if !found {
		return ""
	}
	if idx := strings.IndexByte(after, '&'); idx != -1 {
		after = after[:idx]
	}
	return after
}

// CanonicalID derives the cache key of a media URL: the last path segment,
// reduced to the text after its final "=" when it has one.
func CanonicalID(rawURL string) string {
	segment := rawURL
	if idx := strings.LastIndexByte(segment, '/'); idx != -1 {
		segment = segment[idx+1:]
	}
	if idx := strings.LastIndexByte(segment, '='); idx != -1 {
		segment = segment[idx+1:]
	}
	return segment
}
