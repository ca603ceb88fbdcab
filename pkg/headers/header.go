package headers

import (
	"net/http"
	"sort"
	"strings"
)

// Header is a case-insensitive header container. Keys are stored lower-cased
// and each key maps to a single value; repeated fields are folded into one
// comma-separated value when added through Add.
//
// Set-Cookie cannot be comma-folded, so its repeated values are kept
// newline-separated instead and come back apart through Values.
type Header map[string]string

// SetCookie is the one field whose repeated values are never folded.
const SetCookie = "set-cookie"

const cookieSep = "\n"

// HopByHop lists headers that only make sense for a single transport leg.
var HopByHop = []string{
	"connection",
	"keep-alive",
	"proxy-authenticate",
	"proxy-authorization",
	"te",
	"trailers",
	"transfer-encoding",
	"upgrade",
	"host",
}

// ProxyHopByHop extends HopByHop with the headers a proxy must regenerate
// itself instead of relaying: the body length and the negotiated encoding.
var ProxyHopByHop = append(append([]string{}, HopByHop...),
	"content-length",
	"accept-encoding",
)

var proxyHopSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(ProxyHopByHop))
	for _, name := range ProxyHopByHop {
		set[name] = struct{}{}
	}
	return set
}()

// New returns an empty Header.
func New() Header {
	return make(Header)
}

// FromHTTP copies a net/http header into a Header. Multi-valued fields are
// joined with ", ", except Set-Cookie which keeps every value.
func FromHTTP(h http.Header) Header {
	out := make(Header, len(h))
	for name, values := range h {
		key := normalize(name)
		if key == SetCookie {
			out[key] = strings.Join(values, cookieSep)
			continue
		}
		out[key] = strings.Join(values, ", ")
	}
	return out
}

// FromMap builds a Header from an arbitrary-cased map.
func FromMap(m map[string]string) Header {
	out := make(Header, len(m))
	for name, value := range m {
		out.Set(name, value)
	}
	return out
}

// FromPairs builds a Header from alternating name/value strings.
// A trailing name without a value is ignored.
func FromPairs(pairs ...string) Header {
	out := make(Header, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out.Set(pairs[i], pairs[i+1])
	}
	return out
}

// IsHopByHop reports whether name belongs to the proxy hop-by-hop set.
func IsHopByHop(name string) bool {
	_, ok := proxyHopSet[normalize(name)]
	return ok
}

// Get returns the value for name, or "" when absent.
func (h Header) Get(name string) string {
	return h[normalize(name)]
}

// Lookup returns the value for name and whether it was present.
func (h Header) Lookup(name string) (string, bool) {
	v, ok := h[normalize(name)]
	return v, ok
}

// Has reports whether name is present.
func (h Header) Has(name string) bool {
	_, ok := h[normalize(name)]
	return ok
}

// Set replaces any existing value for name.
func (h Header) Set(name, value string) {
	h[normalize(name)] = value
}

// SetDefault sets name only when it is not already present.
func (h Header) SetDefault(name, value string) {
	key := normalize(name)
	if _, ok := h[key]; !ok {
		h[key] = value
	}
}

// Add appends value to name, folding repeated fields with ", ".
// Set-Cookie values stay separate.
func (h Header) Add(name, value string) {
	key := normalize(name)
	sep := ", "
	if key == SetCookie {
		sep = cookieSep
	}
	if existing, ok := h[key]; ok && existing != "" {
		h[key] = existing + sep + value
		return
	}
	h[key] = value
}

// Values returns the field lines stored under name. Every field yields at
// most one line except Set-Cookie, which yields one per cookie.
func (h Header) Values(name string) []string {
	key := normalize(name)
	v, ok := h[key]
	if !ok {
		return nil
	}
	if key == SetCookie {
		return strings.Split(v, cookieSep)
	}
	return []string{v}
}

// Del removes name.
func (h Header) Del(name string) {
	delete(h, normalize(name))
}

// Len returns the number of distinct header names.
func (h Header) Len() int {
	return len(h)
}

// Keys returns the lower-cased header names in sorted order.
func (h Header) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy.
func (h Header) Clone() Header {
	out := make(Header, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// ProxySafe returns a copy with every proxy hop-by-hop header removed.
// It is used for both directions of a relayed exchange.
func (h Header) ProxySafe() Header {
	out := make(Header, len(h))
	for k, v := range h {
		if _, hop := proxyHopSet[k]; hop {
			continue
		}
		out[k] = v
	}
	return out
}

// ToHTTP converts the header into a net/http header using canonical names.
func (h Header) ToHTTP() http.Header {
	out := make(http.Header, len(h))
	for k := range h {
		for _, v := range h.Values(k) {
			out.Add(k, v)
		}
	}
	return out
}

// Canonical returns the canonical wire form of a lower-cased header name,
// e.g. "content-type" becomes "Content-Type".
func Canonical(name string) string {
	return http.CanonicalHeaderKey(name)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
