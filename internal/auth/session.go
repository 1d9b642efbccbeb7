// Package auth acquires an authenticated HTTP session against the
// accommodation site, either by replaying the user's stored remember-me
// cookie or by performing a fresh form login.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"

	"queuetrack-backend/config"
	"queuetrack-backend/internal/model"
)

// UserAgent is sent on every request to the site.
const UserAgent = "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"

const rememberMeCookie = "REMEMBERME"

// Session is an authenticated client for one user. When Refreshed is true
// the token and expiry were just issued and must be persisted before the
// session is used any further.
type Session struct {
	Client    *http.Client
	Token     string
	Expiry    time.Time
	Refreshed bool
}

// Authenticator performs logins against the configured site.
type Authenticator struct {
	cfg       *config.ScraperConfig
	transport http.RoundTripper
}

// New creates an authenticator, honoring the configured HTTP proxy.
func New(cfg *config.ScraperConfig) (*Authenticator, error) {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.HTTPProxy, err)
		}
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
	return &Authenticator{cfg: cfg, transport: transport}, nil
}

// Login returns a session for the user. A stored, unexpired remember-me
// token is replayed without touching the login endpoint; otherwise a fresh
// login runs and the new token is reported for write-back.
func (a *Authenticator) Login(ctx context.Context, user model.User, now time.Time) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	client := &http.Client{Transport: a.transport, Jar: jar, Timeout: 30 * time.Second}

	if user.SessionValid(now) {
		if err := a.installCookie(jar, user); err != nil {
			return nil, err
		}
		return &Session{Client: client, Token: user.SessionToken, Expiry: user.SessionExpiry}, nil
	}

	token, expiry, err := a.freshLogin(ctx, client, user)
	if err != nil {
		return nil, err
	}
	return &Session{Client: client, Token: token, Expiry: expiry, Refreshed: true}, nil
}

// freshLogin fetches the login form, posts the credentials and captures the
// remember-me cookie the site issues.
func (a *Authenticator) freshLogin(ctx context.Context, client *http.Client, user model.User) (string, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.LoginURL, nil)
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("login page fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("login page returned status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("login page parse failed: %w", err)
	}
	csrf, action, err := loginForm(doc)
	if err != nil {
		return "", time.Time{}, err
	}

	loginURL, err := url.Parse(a.cfg.LoginURL)
	if err != nil {
		return "", time.Time{}, err
	}
	actionURL, err := loginURL.Parse(action)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid form action %q: %w", action, err)
	}

	form := url.Values{
		"_csrf_token":  {csrf},
		"_username":    {user.Email},
		"_password":    {user.Password},
		"_remember_me": {"on"},
	}
	postReq, err := http.NewRequestWithContext(ctx, http.MethodPost, actionURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, err
	}
	postReq.Header.Set("User-Agent", UserAgent)
	postReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	// The remember-me cookie arrives on the login redirect, so the redirect
	// response itself has to be observed; its cookies still land in the jar.
	postClient := &http.Client{
		Transport: client.Transport,
		Jar:       client.Jar,
		Timeout:   client.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	postResp, err := postClient.Do(postReq)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("login post failed: %w", err)
	}
	defer postResp.Body.Close()

	for _, c := range postResp.Cookies() {
		if c.Name == rememberMeCookie && c.Value != "" {
			return c.Value, c.Expires, nil
		}
	}
	return "", time.Time{}, fmt.Errorf("login for %s did not yield a %s cookie", user.Email, rememberMeCookie)
}

// installCookie primes the jar with the stored remember-me cookie.
func (a *Authenticator) installCookie(jar http.CookieJar, user model.User) error {
	target := a.cfg.DashboardURL
	if a.cfg.CookieDomain != "" {
		target = "https://" + a.cfg.CookieDomain + "/"
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid cookie target %q: %w", target, err)
	}
	jar.SetCookies(u, []*http.Cookie{{
		Name:     rememberMeCookie,
		Value:    user.SessionToken,
		Path:     "/",
		Expires:  user.SessionExpiry,
		Secure:   u.Scheme == "https",
		HttpOnly: true,
	}})
	return nil
}

// loginForm extracts the CSRF token and the form action from the login page.
func loginForm(doc *html.Node) (token, action string, err error) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "input":
				if attr(n, "name") == "_csrf_token" {
					token = attr(n, "value")
				}
			case "form":
				if action == "" {
					action = attr(n, "action")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if token == "" {
		return "", "", fmt.Errorf("login page has no _csrf_token input")
	}
	if action == "" {
		return "", "", fmt.Errorf("login page has no form")
	}
	return token, action, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
