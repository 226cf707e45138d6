package refs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

const base = "https://bucket.s3.ap-northeast-2.amazonaws.com"

func TestToKey(t *testing.T) {
	n := NewNormalizer(base + "/")
	assert.Equal(t, "uploads/a.png", n.ToKey(base+"/uploads/a.png"))
	assert.Equal(t, "uploads/a.png", n.ToKey("uploads/a.png"))
	// foreign URLs stay as they are
	assert.Equal(t, "https://cdn.example.com/x.png", n.ToKey("https://cdn.example.com/x.png"))
	assert.Equal(t, "", n.ToKey(""))
}

func TestToKeyIsIdempotent(t *testing.T) {
	n := NewNormalizer(base)
	for _, in := range []string{base + "/a/b.jpg", "a/b.jpg", "http://other/x", base + "/", "old.jpg"} {
		once := n.ToKey(in)
		assert.Equal(t, once, n.ToKey(once), "input %q", in)
	}
}

func TestExtractKeysIsIdempotent(t *testing.T) {
	n := NewNormalizer(base)
	first := n.ExtractKeys([]string{base + "/a.jpg", "b.jpg", base + "/a.jpg"}, "")
	require.Equal(t, []string{"a.jpg", "b.jpg"}, first)
	assert.Equal(t, first, n.ExtractKeys(first, ""))
}

func TestExtractKeysLegacyFallback(t *testing.T) {
	n := NewNormalizer(base)
	assert.Equal(t, []string{"old.jpg"}, n.ExtractKeys([]string{}, "old.jpg"))
	assert.Equal(t, []string{"old.jpg"}, n.ExtractKeys(nil, base+"/old.jpg"))
	// the legacy field is ignored when the list has entries
	assert.Equal(t, []string{"new.jpg"}, n.ExtractKeys(List{"new.jpg"}, "old.jpg"))
	assert.Empty(t, n.ExtractKeys(nil, ""))
}

func TestCoerceShapes(t *testing.T) {
	assert.Nil(t, Coerce(nil))
	assert.Nil(t, Coerce(""))
	assert.Equal(t, []string{"a"}, Coerce("a"))
	assert.Equal(t, []string{"a", "b"}, Coerce(`["a","","b",3]`))
	assert.Equal(t, []string{"a"}, Coerce([]string{"", "a"}))
	assert.Equal(t, []string{"a", "c"}, Coerce([]any{"a", 1, nil, "c"}))
	assert.Equal(t, []string{"x"}, Coerce(bson.A{"x", true}))
	assert.Equal(t, []string{"x", "y"}, Coerce(json.RawMessage(`"[\"x\",\"y\"]"`)))
	assert.Empty(t, Coerce(json.RawMessage(`null`)))
	assert.Empty(t, Coerce(42))
}

func TestToURL(t *testing.T) {
	n := NewNormalizer(base)
	assert.Equal(t, base+"/a.jpg", n.ToURL("/a.jpg"))
	assert.Equal(t, "https://cdn.example.com/x.png", n.ToURL("https://cdn.example.com/x.png"))
	assert.Equal(t, []string{base + "/a", base + "/b"}, n.ToURLs([]string{"a", "", "b"}))
	// rehydration round-trips through ToKey
	assert.Equal(t, "a/b.png", n.ToKey(n.ToURL("a/b.png")))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindURL, Classify("http://x/y").Kind)
	assert.Equal(t, KindKey, Classify("uploads/y").Kind)
}

func TestFieldPresence(t *testing.T) {
	var req struct {
		FileURL  Field `json:"fileUrl"`
		ImageURL Field `json:"imageUrl"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"fileUrl":["a","b"]}`), &req))
	assert.True(t, req.FileURL.Set)
	assert.Equal(t, List{"a", "b"}, req.FileURL.Values)
	assert.False(t, req.ImageURL.Set)

	var cleared struct {
		FileURL Field `json:"fileUrl"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"fileUrl":null}`), &cleared))
	assert.True(t, cleared.FileURL.Set)
	assert.Empty(t, cleared.FileURL.Values)
}

func TestListBSONDecoding(t *testing.T) {
	type doc struct {
		Files List `bson:"fileUrl"`
	}
	cases := map[string]struct {
		in   bson.M
		want List
	}{
		"array":       {bson.M{"fileUrl": bson.A{"a", 1, "", "b"}}, List{"a", "b"}},
		"json text":   {bson.M{"fileUrl": `["a","b"]`}, List{"a", "b"}},
		"single text": {bson.M{"fileUrl": "a"}, List{"a"}},
		"null":        {bson.M{"fileUrl": nil}, List{}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			raw, err := bson.Marshal(tc.in)
			require.NoError(t, err)
			var d doc
			require.NoError(t, bson.Unmarshal(raw, &d))
			if len(tc.want) == 0 {
				assert.Empty(t, d.Files)
				return
			}
			assert.Equal(t, tc.want, d.Files)
		})
	}
}

func TestToURLRehydratesKeysStartingWithHTTP(t *testing.T) {
	n := NewNormalizer("https://bucket.example.com/")
	assert.Equal(t, "https://bucket.example.com/httpdocs/a.png", n.ToURL("httpdocs/a.png"))
	assert.Equal(t, "https://bucket.example.com/https-logo.png", n.ToURL("https-logo.png"))
	assert.Equal(t, "http://cdn.example.com/x.png", n.ToURL("http://cdn.example.com/x.png"))
	assert.Equal(t, "httpdocs/a.png", n.ToKey(n.ToURL("httpdocs/a.png")))
}
