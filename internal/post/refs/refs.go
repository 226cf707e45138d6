// Package refs turns the file references attached to a post into canonical
// object-storage keys and back into client-facing URLs.
//
// A reference is either a bare key ("uploads/u1/a.png") or an absolute URL
// under the configured base ("https://bucket.s3.region.amazonaws.com/uploads/u1/a.png").
// Both denote the same object. Everything is reduced to keys on ingress and
// rehydrated to URLs only on egress.
package refs

import (
	"encoding/json"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

var absoluteURL = regexp.MustCompile(`(?i)^https?://`)

// Kind tags a raw reference string.
type Kind int

const (
	KindKey Kind = iota
	KindURL
)

// Ref is a classified reference as received from a client or a stored document.
type Ref struct {
	Kind  Kind
	Value string
}

// Classify tags raw as an absolute URL or a bare key.
func Classify(raw string) Ref {
	if absoluteURL.MatchString(raw) {
		return Ref{Kind: KindURL, Value: raw}
	}
	return Ref{Kind: KindKey, Value: raw}
}

// Normalizer converts between keys and URLs for one storage base URL.
type Normalizer struct {
	base string
}

func NewNormalizer(baseURL string) *Normalizer {
	return &Normalizer{base: strings.TrimRight(baseURL, "/")}
}

// BaseURL returns the base without trailing slashes.
func (n *Normalizer) BaseURL() string { return n.base }

// ToKey reduces a reference to its object key. URLs outside the base and bare
// keys are returned unchanged, so ToKey(ToKey(x)) == ToKey(x).
func (n *Normalizer) ToKey(raw string) string {
	r := Classify(raw)
	if r.Kind == KindKey {
		return r.Value
	}
	if n.base != "" && strings.HasPrefix(r.Value, n.base+"/") {
		return r.Value[len(n.base)+1:]
	}
	return r.Value
}

// ToURL is the inverse of ToKey used when serving posts to clients.
func (n *Normalizer) ToURL(key string) string {
	if Classify(key).Kind == KindURL {
		return key
	}
	return n.base + "/" + strings.TrimLeft(key, "/")
}

// ToURLs rehydrates every non-empty key.
func (n *Normalizer) ToURLs(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		out = append(out, n.ToURL(k))
	}
	return out
}

// ExtractKeys produces the ordered, de-duplicated key set of a post from its
// list field and legacy single-image field. The legacy field is consulted only
// when the list yields nothing. Malformed input degrades to fewer keys.
func (n *Normalizer) ExtractKeys(fileRefs any, legacy string) []string {
	raw := Coerce(fileRefs)
	if len(raw) == 0 && legacy != "" {
		raw = []string{legacy}
	}
	seen := make(map[string]struct{}, len(raw))
	keys := make([]string, 0, len(raw))
	for _, r := range raw {
		k := n.ToKey(r)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// Coerce accepts the shapes a reference field shows up in (absent, a single
// string, a JSON array encoded as text, or a real sequence) and returns the
// non-empty string entries in order.
func Coerce(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return coerceString(t)
	case []string:
		return nonEmpty(t)
	case List:
		return nonEmpty(t)
	case *List:
		if t == nil {
			return nil
		}
		return nonEmpty(*t)
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(t, &decoded); err != nil {
			return nil
		}
		return Coerce(decoded)
	case bson.A:
		return coerceSlice(t)
	case []any:
		return coerceSlice(t)
	}
	return nil
}

func coerceString(s string) []string {
	if s == "" {
		return nil
	}
	var parsed any
	if err := json.Unmarshal([]byte(s), &parsed); err == nil {
		if arr, ok := parsed.([]any); ok {
			return coerceSlice(arr)
		}
	}
	return []string{s}
}

func coerceSlice(in []any) []string {
	out := make([]string, 0, len(in))
	for _, e := range in {
		if s, ok := e.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
