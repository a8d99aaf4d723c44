// Package scrapertest provides an in-process fake of the W1000 portal.
package scrapertest

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// Token is the anti-forgery token the fake portal hands out (108 chars)
var Token = strings.Repeat("Zx9-_", 21) + "end"

const authCookie = ".ASPXAUTH"

// Portal is a fake W1000 portal. Zero-value overrides keep the happy path.
type Portal struct {
	*httptest.Server

	Username string
	Password string

	// LoginPage replaces the rendered login page when set
	LoginPage string
	// LoginPageStatus refuses the login page with this status when set
	LoginPageStatus int
	// LoginStatus forces the login POST status when set
	LoginStatus int
	// ChartJSON is returned by Reports/ChartData
	ChartJSON string
	// ExportCSV is returned by ExportReport/Export
	ExportCSV string
	// ReportStatus forces the report endpoints' status when set
	ReportStatus int

	mu             sync.Mutex
	loginPosts     int
	chartRequests  []url.Values
	exportRequests []url.Values
}

// NewPortal starts a fake portal that accepts user/pass. The base URL for
// the client is BaseURL().
func NewPortal(t testing.TB) *Portal {
	t.Helper()

	p := &Portal{
		Username:  "user",
		Password:  "pass",
		ChartJSON: `[{"name":"P1 1.8.0","unit":"kWh","data":[[1678876200000,1.5,"OK"]]}]`,
		ExportCSV: "POD;OBIS;Time;Value;Status\nP1;1.8.0';2023.03.15 10:30:00;1.5;OK\n",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /W1000/Account/Login", p.handleLoginPage)
	mux.HandleFunc("POST /W1000/Account/Login", p.handleLogin)
	mux.HandleFunc("GET /W1000/Home", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>home</html>"))
	})
	mux.HandleFunc("GET /W1000/Reports/ChartData", p.handleChart)
	mux.HandleFunc("POST /W1000/ExportReport/Export", p.handleExport)

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// BaseURL returns the portal root the way it is configured in production
func (p *Portal) BaseURL() string {
	return p.Server.URL + "/W1000/"
}

// LoginPosts returns how many login forms were submitted
func (p *Portal) LoginPosts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loginPosts
}

// ChartRequests returns the query of every chart data request
func (p *Portal) ChartRequests() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.chartRequests...)
}

// ExportRequests returns the form of every export request
func (p *Portal) ExportRequests() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.exportRequests...)
}

// LoginPageHTML renders a login form carrying token
func LoginPageHTML(token string) string {
	return `<html><body><form method="post" action="/W1000/Account/Login">` +
		`<input name="__RequestVerificationToken" type="hidden" value="` + token + `" />` +
		`<input name="UserName" type="text" /><input name="Password" type="password" />` +
		`</form></body></html>`
}

func (p *Portal) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if p.LoginPageStatus != 0 {
		http.Error(w, "request blocked", p.LoginPageStatus)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "__RequestVerificationToken", Value: "cookie-half", Path: "/W1000"})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := p.LoginPage
	if page == "" {
		page = LoginPageHTML(Token)
	}
	w.Write([]byte(page))
}

func (p *Portal) handleLogin(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.loginPosts++
	p.mu.Unlock()

	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if p.LoginStatus != 0 {
		w.WriteHeader(p.LoginStatus)
		return
	}

	if _, err := r.Cookie("__RequestVerificationToken"); err != nil ||
		r.PostForm.Get("__RequestVerificationToken") != Token ||
		r.PostForm.Get("UserName") != p.Username ||
		r.PostForm.Get("Password") != p.Password {
		// The real portal re-renders the form on bad credentials
		w.Write([]byte(LoginPageHTML(Token)))
		return
	}

	http.SetCookie(w, &http.Cookie{Name: authCookie, Value: "session", Path: "/W1000"})
	http.Redirect(w, r, "/W1000/Home", http.StatusFound)
}

func (p *Portal) authorized(w http.ResponseWriter, r *http.Request) bool {
	if _, err := r.Cookie(authCookie); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if p.ReportStatus != 0 {
		http.Error(w, "forced", p.ReportStatus)
		return false
	}
	return true
}

func (p *Portal) handleChart(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.chartRequests = append(p.chartRequests, r.URL.Query())
	p.mu.Unlock()

	if !p.authorized(w, r) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(p.ChartJSON))
}

func (p *Portal) handleExport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	p.exportRequests = append(p.exportRequests, r.PostForm)
	p.mu.Unlock()

	if !p.authorized(w, r) {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Write([]byte(p.ExportCSV))
}
