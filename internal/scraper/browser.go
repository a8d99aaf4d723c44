package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// BrowserPage is a page as rendered by headless Chrome
type BrowserPage struct {
	HTML    string
	Cookies []*http.Cookie
}

// RenderLoginPage loads the portal login page in Chrome and returns the
// rendered HTML and the cookies the portal set. It is a diagnostic for
// token extraction failures; the job itself never starts a browser.
func (a *Authenticator) RenderLoginPage(ctx context.Context, visible bool) (*BrowserPage, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !visible),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if a.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(a.userAgent))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, 60*time.Second)
	defer cancel()

	loginURL := a.baseURL.ResolveReference(&url.URL{Path: loginPath}).String()

	var page string
	if err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.Navigate(loginURL),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
		chromedp.OuterHTML(`html`, &page, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", loginURL, err)
	}

	cookies, err := extractCookies(browserCtx)
	if err != nil {
		return nil, err
	}

	return &BrowserPage{HTML: page, Cookies: cookies}, nil
}

// extractCookies extracts all cookies from the current browser context
func extractCookies(ctx context.Context) ([]*http.Cookie, error) {
	var cookies []*network.Cookie

	if err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
	); err != nil {
		return nil, fmt.Errorf("getting cookies: %w", err)
	}

	result := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		result = append(result, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  time.Unix(int64(c.Expires), 0),
			HttpOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}

	return result, nil
}
