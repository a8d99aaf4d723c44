package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const (
	loginPath = "Account/Login"

	maxErrorBody = 512
)

// Credentials are the portal login details for one run
type Credentials struct {
	Username string
	Password string
}

// Authenticator logs in to the W1000 portal
type Authenticator struct {
	baseURL   *url.URL
	timeout   time.Duration
	userAgent string
	extractor TokenExtractor
	transport http.RoundTripper
}

// AuthenticatorOptions configures an Authenticator
type AuthenticatorOptions struct {
	BaseURL   string
	Timeout   time.Duration // per request, zero means no timeout
	UserAgent string
	Extractor TokenExtractor    // defaults to RegexTokenExtractor
	Transport http.RoundTripper // defaults to http.DefaultTransport
}

// NewAuthenticator creates an Authenticator for the portal at opts.BaseURL
func NewAuthenticator(opts AuthenticatorOptions) (*Authenticator, error) {
	base := opts.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing portal base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("portal base url must be absolute: %s", opts.BaseURL)
	}

	extractor := opts.Extractor
	if extractor == nil {
		extractor = RegexTokenExtractor{}
	}

	return &Authenticator{
		baseURL:   u,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		extractor: extractor,
		transport: opts.Transport,
	}, nil
}

// Session is an authenticated portal client. It belongs to a single run
// and must not be shared.
type Session struct {
	baseURL   *url.URL
	client    *http.Client
	userAgent string
}

// Authenticate scrapes the anti-forgery token from the login page and
// submits the login form. The portal answers a good login with 302 Found.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	s := &Session{
		baseURL: a.baseURL,
		client: &http.Client{
			Jar:       jar,
			Timeout:   a.timeout,
			Transport: a.transport,
		},
		userAgent: a.userAgent,
	}

	page, err := s.Get(ctx, loginPath, nil)
	if err != nil {
		// A refused login page (bot blocking, maintenance) has no token to find
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) {
			return nil, &TokenExtractionError{Strategy: a.extractor.Name(), StatusCode: fetchErr.StatusCode}
		}
		return nil, fmt.Errorf("loading login page: %w", err)
	}

	token, err := a.extractor.Extract(page)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("UserName", creds.Username)
	form.Set("Password", creds.Password)
	form.Set(TokenFieldName, token)

	req, err := s.newRequest(ctx, http.MethodPost, loginPath, nil, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	// Same jar, but the redirect is the success signal so it must not be followed
	noRedirect := *s.client
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := noRedirect.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submitting login form: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusFound {
		return nil, &LoginError{StatusCode: resp.StatusCode}
	}

	return s, nil
}

// Get issues a GET relative to the portal base and returns the body
func (s *Session) Get(ctx context.Context, path string, query url.Values) (string, error) {
	req, err := s.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return "", err
	}
	return s.do(req)
}

// PostForm issues a form POST relative to the portal base and returns the body
func (s *Session) PostForm(ctx context.Context, path string, form url.Values) (string, error) {
	req, err := s.newRequest(ctx, http.MethodPost, path, nil, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func (s *Session) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := s.baseURL.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	return req, nil
}

func (s *Session) do(req *http.Request) (string, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		preview := string(body)
		if len(preview) > maxErrorBody {
			preview = preview[:maxErrorBody]
		}
		u := *req.URL
		u.RawQuery = ""
		return "", &FetchError{URL: u.String(), StatusCode: resp.StatusCode, Body: preview}
	}

	return string(body), nil
}
