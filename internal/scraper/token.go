package scraper

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// TokenFieldName is the hidden form field carrying the anti-forgery token
const TokenFieldName = "__RequestVerificationToken"

// TokenExtractor finds the anti-forgery token in a login page
type TokenExtractor interface {
	Extract(page string) (string, error)
	Name() string
}

// NewTokenExtractor returns the extractor for a strategy name ("regex" or "html")
func NewTokenExtractor(strategy string) (TokenExtractor, error) {
	switch strategy {
	case "regex", "":
		return RegexTokenExtractor{}, nil
	case "html":
		return HTMLTokenExtractor{}, nil
	default:
		return nil, fmt.Errorf("unknown token strategy: %s (available: regex, html)", strategy)
	}
}

var tokenPattern = regexp.MustCompile(`value="([a-zA-Z0-9_\-]{108})"`)

// RegexTokenExtractor returns the first 108 character token-shaped value
// attribute on the page.
type RegexTokenExtractor struct{}

func (RegexTokenExtractor) Name() string { return "regex" }

func (RegexTokenExtractor) Extract(page string) (string, error) {
	m := tokenPattern.FindStringSubmatch(page)
	if m == nil {
		return "", &TokenExtractionError{Strategy: "regex"}
	}
	return m[1], nil
}

// HTMLTokenExtractor parses the page and reads the value of the
// __RequestVerificationToken input.
type HTMLTokenExtractor struct{}

func (HTMLTokenExtractor) Name() string { return "html" }

func (HTMLTokenExtractor) Extract(page string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return "", &TokenExtractionError{Strategy: "html"}
			}
			return "", fmt.Errorf("parsing login page: %w", z.Err())
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "input" {
				continue
			}
			var name, value string
			for _, attr := range tok.Attr {
				switch attr.Key {
				case "name":
					name = attr.Val
				case "value":
					value = attr.Val
				}
			}
			if name == TokenFieldName && value != "" {
				return value, nil
			}
		}
	}
}
