package profiles

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader resolves profile names to validated Profile definitions. Profile
// files are JSON; an optional index.yaml per search path maps slave
// identities to profile files so scanned slaves can be matched
// automatically.
type Loader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string

	indexOnce sync.Once
	indexErr  error
	index     []IndexEntry
}

// IndexEntry maps a slave identity to a profile file (without extension).
type IndexEntry struct {
	VendorID    uint32 `yaml:"vendor_id"`
	ProductCode uint32 `yaml:"product_code"`
	File        string `yaml:"file"`
}

type indexFile struct {
	Profiles []IndexEntry `yaml:"profiles"`
}

func NewLoader(searchPaths []string) (*Loader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Loader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

// Load reads, validates and caches the named profile.
func (l *Loader) Load(name string) (*Profile, error) {
	if cached, ok := l.cache.Load(name); ok {
		return cached.(*Profile), nil
	}

	var data []byte
	var err error
	var foundPath string

	for _, searchPath := range l.searchPaths {
		fullPath := filepath.Join(searchPath, name+".json")
		data, err = os.ReadFile(fullPath)
		if err == nil {
			foundPath = fullPath
			break
		}
	}

	if data == nil {
		return nil, fmt.Errorf("profile not found: %s (searched in: %v)", name, l.searchPaths)
	}

	if err := l.validator.ValidateProfile(data); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", foundPath, err)
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}

	l.cache.Store(name, &profile)
	return &profile, nil
}

// Match finds the profile for a slave identity via the index files.
func (l *Loader) Match(vendorID, productCode uint32) (*Profile, error) {
	l.indexOnce.Do(l.loadIndex)
	if l.indexErr != nil {
		return nil, l.indexErr
	}

	for _, e := range l.index {
		if e.VendorID == vendorID && e.ProductCode == productCode {
			return l.Load(e.File)
		}
	}
	return nil, fmt.Errorf("no profile indexed for vendor 0x%08x product 0x%08x", vendorID, productCode)
}

func (l *Loader) loadIndex() {
	for _, searchPath := range l.searchPaths {
		data, err := os.ReadFile(filepath.Join(searchPath, "index.yaml"))
		if err != nil {
			continue
		}
		var idx indexFile
		if err := yaml.Unmarshal(data, &idx); err != nil {
			l.indexErr = fmt.Errorf("failed to parse %s: %w", filepath.Join(searchPath, "index.yaml"), err)
			return
		}
		l.index = append(l.index, idx.Profiles...)
	}
}

// Index returns all indexed profile entries.
func (l *Loader) Index() ([]IndexEntry, error) {
	l.indexOnce.Do(l.loadIndex)
	if l.indexErr != nil {
		return nil, l.indexErr
	}
	return l.index, nil
}

func (l *Loader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}
