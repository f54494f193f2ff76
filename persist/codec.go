package persist

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/jonwraymond/graphcache/cache"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Encode returns s as JSON.
func Encode(s *cache.Snapshot) ([]byte, error) {
	if s == nil {
		s = &cache.Snapshot{}
	}
	return json.Marshal(s)
}

// Decode parses JSON produced by Encode. Numbers decode as float64; the
// cache compares keys canonically, so restored references still match.
func Decode(b []byte) (*cache.Snapshot, error) {
	var s cache.Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return &s, nil
}

// Export encodes the current contents of c.
func Export(c *cache.Container) ([]byte, error) {
	return Encode(c.Export())
}

// Import decodes b and merges it into c, resolving types with c's registry.
func Import(c *cache.Container, b []byte) error {
	s, err := Decode(b)
	if err != nil {
		return err
	}
	return c.Import(s, nil)
}
