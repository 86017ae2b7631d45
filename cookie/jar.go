// Package cookie abstracts how session and CSRF cookies travel between the
// browser and cmsauth. The core never touches http.Request or
// http.ResponseWriter directly; it reads and writes through a [Jar].
package cookie

import (
	"net/http"
	"sync"
	"time"
)

// Jar is the cookie view of one request.
//
// Get must observe values written by Set earlier in the same request, so that a
// session started during login is visible to code running later in that
// request.
type Jar interface {
	Get(name string) (string, bool)
	Set(c *http.Cookie)
}

// Options carries the attributes applied to every cookie cmsauth writes.
type Options struct {
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

// New builds a cookie with the configured attributes. A zero expires produces
// a browser-session cookie.
func (o Options) New(name, value string, expires time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     o.Path,
		Domain:   o.Domain,
		Secure:   o.Secure,
		HttpOnly: o.HTTPOnly,
		SameSite: o.SameSite,
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if !expires.IsZero() {
		c.Expires = expires.UTC()
	}
	return c
}

// Expired builds a cookie that instructs the browser to drop name immediately.
func (o Options) Expired(name string) *http.Cookie {
	c := o.New(name, "", time.Unix(1, 0))
	c.MaxAge = -1
	return c
}

// IsExpired reports whether c deletes the cookie rather than setting it.
func IsExpired(c *http.Cookie) bool {
	return c.MaxAge < 0
}

type httpJar struct {
	w http.ResponseWriter
	r *http.Request

	mu      sync.Mutex
	written map[string]*http.Cookie
}

// HTTP returns a [Jar] that reads cookies from r and writes Set-Cookie headers
// to w.
func HTTP(w http.ResponseWriter, r *http.Request) Jar {
	return &httpJar{w: w, r: r, written: make(map[string]*http.Cookie)}
}

func (j *httpJar) Get(name string) (string, bool) {
	j.mu.Lock()
	c, ok := j.written[name]
	j.mu.Unlock()
	if ok {
		if IsExpired(c) {
			return "", false
		}
		return c.Value, true
	}

	rc, err := j.r.Cookie(name)
	if err != nil {
		return "", false
	}
	return rc.Value, true
}

func (j *httpJar) Set(c *http.Cookie) {
	if c == nil || c.Name == "" {
		return
	}
	j.mu.Lock()
	j.written[c.Name] = c
	j.mu.Unlock()
	http.SetCookie(j.w, c)
}

// Memory is an in-process [Jar] for tests and non-HTTP hosts. It keeps the
// last cookie written under each name.
type Memory struct {
	mu      sync.Mutex
	cookies map[string]*http.Cookie
}

// NewMemory creates an empty [Memory] jar.
func NewMemory() *Memory {
	return &Memory{cookies: make(map[string]*http.Cookie)}
}

func (m *Memory) Get(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cookies[name]
	if !ok || IsExpired(c) {
		return "", false
	}
	return c.Value, true
}

func (m *Memory) Set(c *http.Cookie) {
	if c == nil || c.Name == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if IsExpired(c) {
		delete(m.cookies, c.Name)
		return
	}
	cp := *c
	m.cookies[c.Name] = &cp
}

// Cookie returns the stored cookie with all attributes, for assertions.
func (m *Memory) Cookie(name string) (*http.Cookie, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cookies[name]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

// Put seeds a cookie value as if the browser had sent it.
func (m *Memory) Put(name, value string) {
	m.Set(&http.Cookie{Name: name, Value: value})
}
