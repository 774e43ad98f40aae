// Package urlstate models the URL state owned by a synchronization
// controller: a path, an ordered set of query parameters, and a fragment.
//
// The ordering guarantee is the point of this package. Parameters keep
// their first-set position across updates, so repeated builds of the same
// logical state produce byte-identical URLs, and parsing a built URL
// reproduces the identical parameter mapping (round-trip stability).
// net/url's Values type cannot provide this - it sorts keys on encode.
package urlstate

import (
	"errors"
	"net/url"
	"strings"
)

// ErrCrossOrigin is returned by Parse when the URL's origin differs from
// the page origin. Controllers treat it as a rejected, no-op input.
var ErrCrossOrigin = errors.New("urlstate: cross-origin URL rejected")

// ErrMalformed is returned by Parse when the URL cannot be parsed at all.
var ErrMalformed = errors.New("urlstate: malformed URL")

// Params is an ordered string-to-string mapping. Keys keep their first-set
// position; updating an existing key keeps its slot, deleting and
// re-setting moves it to the end.
type Params struct {
	keys []string
	vals map[string]string
}

// NewParams returns an empty ordered parameter set.
func NewParams() *Params {
	return &Params{vals: make(map[string]string)}
}

// Set stores value under key. An empty value still counts as present;
// callers that want empty-deletes use the controller's UpdateParam, which
// layers that policy on top.
func (p *Params) Set(key, value string) {
	if _, ok := p.vals[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.vals[key] = value
}

// Get returns the value for key and whether it is present.
func (p *Params) Get(key string) (string, bool) {
	v, ok := p.vals[key]
	return v, ok
}

// Del removes key. Removing an absent key is a no-op.
func (p *Params) Del(key string) {
	if _, ok := p.vals[key]; !ok {
		return
	}
	delete(p.vals, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of parameters.
func (p *Params) Len() int {
	return len(p.keys)
}

// Keys returns the parameter keys in order. The slice is a copy.
func (p *Params) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Clone returns an independent copy.
func (p *Params) Clone() *Params {
	c := NewParams()
	for _, k := range p.keys {
		c.Set(k, p.vals[k])
	}
	return c
}

// Encode renders the parameters as a query string (no leading "?"),
// percent-encoded, in insertion order.
func (p *Params) Encode() string {
	if len(p.keys) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, k := range p.keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.vals[k]))
	}
	return sb.String()
}

// Pairs returns the parameters as ordered key/value pairs.
func (p *Params) Pairs() [][2]string {
	out := make([][2]string, 0, len(p.keys))
	for _, k := range p.keys {
		out = append(out, [2]string{k, p.vals[k]})
	}
	return out
}

// FromPairs rebuilds a parameter set from ordered pairs.
func FromPairs(pairs [][2]string) *Params {
	p := NewParams()
	for _, kv := range pairs {
		p.Set(kv[0], kv[1])
	}
	return p
}

// URL is a parsed same-origin URL: path, ordered params, fragment.
// The fragment is preserved but never interpreted.
type URL struct {
	Path   string
	Params *Params
	Hash   string
}

// Parse parses raw into a URL, enforcing the same-origin policy against
// origin (scheme://host[:port]). Relative URLs are implicitly same-origin.
// Absolute URLs must match origin exactly or ErrCrossOrigin is returned.
//
// Duplicate query keys keep the last value; order of first appearance is
// preserved.
func Parse(raw, origin string) (URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return URL{}, errors.Join(ErrMalformed, err)
	}
	if u.Scheme != "" || u.Host != "" {
		if !SameOrigin(u, origin) {
			return URL{}, ErrCrossOrigin
		}
	}
	params := NewParams()
	for _, part := range strings.Split(u.RawQuery, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}
		params.Set(key, val)
	}
	path := u.Path
	if path != "" && !strings.HasPrefix(path, "/") {
		// Fetch URLs are origin + path; a bare relative path like
		// "orders" must not concatenate into the host.
		path = "/" + path
	}
	return URL{Path: path, Params: params, Hash: u.Fragment}, nil
}

// SameOrigin reports whether u shares scheme and host with origin.
// Default ports are normalized per scheme before comparing, so
// "http://example.com:80" and "http://example.com" are the same origin,
// as they are in a browser.
func SameOrigin(u *url.URL, origin string) bool {
	o, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != o.Scheme {
		return false
	}
	return normalizeHost(u) == normalizeHost(o)
}

// normalizeHost returns the URL's host with a scheme-default port
// stripped.
func normalizeHost(u *url.URL) string {
	host := u.Host
	switch u.Scheme {
	case "http":
		host = strings.TrimSuffix(host, ":80")
	case "https":
		host = strings.TrimSuffix(host, ":443")
	}
	return host
}

// String renders the URL as path + query + fragment, suitable both for
// fetching (prefixed with the origin) and for history entries.
func (u URL) String() string {
	var sb strings.Builder
	sb.WriteString(u.Path)
	if u.Params != nil && u.Params.Len() > 0 {
		sb.WriteByte('?')
		sb.WriteString(u.Params.Encode())
	}
	if u.Hash != "" {
		sb.WriteByte('#')
		sb.WriteString(u.Hash)
	}
	return sb.String()
}

// Clone returns an independent copy of the URL.
func (u URL) Clone() URL {
	c := URL{Path: u.Path, Hash: u.Hash, Params: NewParams()}
	if u.Params != nil {
		c.Params = u.Params.Clone()
	}
	return c
}
