package listing

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// CSRF names used by the backend.
const (
	CSRFFormField  = "csrfmiddlewaretoken"
	CSRFCookieName = "csrftoken"
	CSRFMetaName   = "csrf-token"
	CSRFHeader     = "X-CSRFToken"
)

// ExtractToken finds the anti-forgery token, preferring the hidden form field,
// then the cookie, then the meta tag. Returns "" when none is present.
func ExtractToken(page io.Reader, cookies []*http.Cookie) string {
	var field, meta string
	if page != nil {
		field, meta = scanTokens(page)
	}
	if field != "" {
		return field
	}
	for _, c := range cookies {
		if c.Name == CSRFCookieName && c.Value != "" {
			return c.Value
		}
	}
	return meta
}

func scanTokens(r io.Reader) (field, meta string) {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return field, meta
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "input":
				if field == "" && attr(tok, "name") == CSRFFormField {
					field = attr(tok, "value")
				}
			case "meta":
				if meta == "" && attr(tok, "name") == CSRFMetaName {
					meta = attr(tok, "content")
				}
			}
		}
	}
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// TokenSource yields the token sent with mutating actions.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// PageTokenSource fetches an HTML page once through the client and extracts
// the token from it, falling back to the jar's cookie.
type PageTokenSource struct {
	Client *Client
	Path   string

	mu    sync.Mutex
	token string
}

// Token implements TokenSource.
func (p *PageTokenSource) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" {
		return p.token, nil
	}
	path := p.Path
	if path == "" {
		path = "/"
	}
	body, cookies, err := p.Client.fetchHTML(ctx, path)
	if err != nil {
		// A cookie set by an earlier list call is still usable.
		if tok := ExtractToken(nil, p.Client.cookies()); tok != "" {
			return tok, nil
		}
		return "", err
	}
	p.token = ExtractToken(bytes.NewReader(body), cookies)
	return p.token, nil
}

// Invalidate forgets the cached token.
func (p *PageTokenSource) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
}
