package persist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonwraymond/graphcache/cache"
	"github.com/jonwraymond/graphcache/internal/canon"
	"github.com/jonwraymond/graphcache/schema"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fixture struct {
	reg  *schema.Registry
	feed *cache.Query
	data []any
	c    *cache.Container
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := schema.NewRegistry()
	user := reg.MustDefine("User", []string{"id"}, nil)
	post := reg.MustDefine("Post", []string{"id"}, map[string]*schema.Shape{
		"author": schema.Entity(user),
	})
	c, err := cache.New(reg, cache.Options{})
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	f := &fixture{
		reg:  reg,
		feed: &cache.Query{Name: "feed", Shape: schema.Array(schema.Entity(post))},
		data: []any{
			map[string]any{"id": 1, "title": "a", "author": map[string]any{"id": 7, "name": "ann"}},
			map[string]any{"id": 2, "title": "b", "author": map[string]any{"id": 7, "name": "ann"}},
		},
		c: c,
	}
	if _, _, err := c.SaveQueryData(f.feed, f.data); err != nil {
		t.Fatalf("SaveQueryData failed: %v", err)
	}
	return f
}

// restore imports s into an empty container over the same registry and
// checks the feed reads back unchanged.
func (f *fixture) restore(t *testing.T, s *cache.Snapshot) {
	t.Helper()
	c, err := cache.New(f.reg, cache.Options{})
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	if err := c.Import(s, nil); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	got, ok := c.Read(f.feed)
	if !ok {
		t.Fatal("restored container lost the feed slot")
	}
	if !canon.Equal(f.data, got) {
		t.Errorf("restored view differs:\n want %v\n got  %v", f.data, got)
	}
	if n := c.Stats().Objects; n != 3 {
		t.Errorf("restored Objects = %d, want 3", n)
	}
}

func TestEncodeDecode(t *testing.T) {
	f := newFixture(t)
	b, err := Export(f.c)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !strings.Contains(string(b), `"__type__":"User"`) {
		t.Errorf("encoded snapshot has no reference token: %s", b)
	}
	s, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	f.restore(t, s)
}

func TestImport(t *testing.T) {
	f := newFixture(t)
	b, err := Export(f.c)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	c, _ := cache.New(f.reg, cache.Options{})
	if err := Import(c, b); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if _, ok := c.Read(f.feed); !ok {
		t.Error("Import did not restore the feed slot")
	}

	if err := Import(c, []byte("{not json")); !errors.Is(err, ErrDecode) {
		t.Errorf("Import(garbage) error = %v, want ErrDecode", err)
	}
}

func TestSealOpen(t *testing.T) {
	f := newFixture(t)
	token, err := Seal(f.c.Export(), testKey, SealOptions{KeyID: "k1", TTL: time.Hour})
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("Seal returned %q, want a compact token", token)
	}
	s, err := Open(token, testKey)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	f.restore(t, s)
}

func TestOpen_Rejects(t *testing.T) {
	f := newFixture(t)
	good, err := Seal(f.c.Export(), testKey, SealOptions{})
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	forged, err := Seal(&cache.Snapshot{}, []byte("another key entirely, 32 bytes!!"), SealOptions{})
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	expired, err := Seal(f.c.Export(), testKey, SealOptions{
		TTL: time.Hour,
		Now: func() time.Time { return time.Now().Add(-2 * time.Hour) },
	})
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"iss":      Issuer,
		"snapshot": map[string]any{},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString(none) failed: %v", err)
	}

	// The payload of one token under the signature of another.
	goodParts := strings.Split(good, ".")
	forgedParts := strings.Split(forged, ".")
	tampered := strings.Join([]string{forgedParts[0], forgedParts[1], goodParts[2]}, ".")

	tests := []struct {
		name  string
		token string
		key   []byte
		is    error
	}{
		{name: "wrong key", token: good, key: []byte("wrong key")},
		{name: "tampered payload", token: tampered, key: testKey},
		{name: "expired", token: expired, key: testKey, is: jwt.ErrTokenExpired},
		{name: "alg none", token: unsigned, key: testKey},
		{name: "garbage", token: "not.a.token", key: testKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.token, tt.key)
			if !errors.Is(err, ErrInvalidEnvelope) {
				t.Fatalf("Open error = %v, want ErrInvalidEnvelope", err)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("Open error = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestSealOpen_MissingKey(t *testing.T) {
	if _, err := Seal(&cache.Snapshot{}, nil, SealOptions{}); !errors.Is(err, ErrMissingKey) {
		t.Errorf("Seal error = %v, want ErrMissingKey", err)
	}
	if _, err := Open("a.b.c", nil); !errors.Is(err, ErrMissingKey) {
		t.Errorf("Open error = %v, want ErrMissingKey", err)
	}
}

func TestSaveLoadFile(t *testing.T) {
	tests := []struct {
		name string
		key  []byte
	}{
		{name: "plain"},
		{name: "sealed", key: testKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			path := filepath.Join(t.TempDir(), "cache.snap")
			if err := SaveFile(path, f.c.Export(), tt.key); err != nil {
				t.Fatalf("SaveFile failed: %v", err)
			}
			// Overwrite to exercise the atomic replace.
			if err := SaveFile(path, f.c.Export(), tt.key); err != nil {
				t.Fatalf("SaveFile (overwrite) failed: %v", err)
			}
			entries, _ := os.ReadDir(filepath.Dir(path))
			if len(entries) != 1 {
				t.Errorf("directory has %d entries, want only the snapshot", len(entries))
			}

			s, err := LoadFile(path, tt.key)
			if err != nil {
				t.Fatalf("LoadFile failed: %v", err)
			}
			f.restore(t, s)
		})
	}
}

func TestLoadFile_SealedWithoutKey(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "cache.snap")
	if err := SaveFile(path, f.c.Export(), testKey); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	if _, err := LoadFile(path, nil); !errors.Is(err, ErrDecode) {
		t.Errorf("LoadFile error = %v, want ErrDecode", err)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing"), nil); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadFile error = %v, want os.ErrNotExist", err)
	}
}
