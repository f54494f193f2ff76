package persist

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonwraymond/graphcache/cache"
)

// SaveFile writes s to path, replacing the file atomically. With a key the
// file holds a sealed token, otherwise plain JSON.
func SaveFile(path string, s *cache.Snapshot, key []byte) error {
	var data []byte
	if len(key) > 0 {
		token, err := Seal(s, key, SealOptions{})
		if err != nil {
			return err
		}
		data = []byte(token)
	} else {
		var err error
		if data, err = Encode(s); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("persist: save %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("persist: save %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persist: save %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("persist: save %s: %w", path, err)
	}
	return nil
}

// LoadFile reads a snapshot written by SaveFile. A key is required exactly
// when the file was sealed.
func LoadFile(path string, key []byte) (*cache.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persist: load %s: %w", path, err)
	}
	data = bytes.TrimSpace(data)
	if len(key) > 0 {
		return Open(string(data), key)
	}
	return Decode(data)
}
