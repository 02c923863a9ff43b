package station

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/evfleet/station-simulator/internal/ocpp"
)

// ConfigurationKeyStore is the station's OCPP configuration-key table.
// Keys are case-sensitive by default; AllowCaseInsensitive
// enables a fallback case-insensitive lookup. The store is an ordered
// sequence; Set/Delete act on the first match.
type ConfigurationKeyStore struct {
	mu                   sync.RWMutex
	keys                 []ocpp.KeyValue
	AllowCaseInsensitive bool
}

// NewConfigurationKeyStore returns an empty store.
func NewConfigurationKeyStore() *ConfigurationKeyStore {
	return &ConfigurationKeyStore{keys: []ocpp.KeyValue{}}
}

func (s *ConfigurationKeyStore) indexOf(key string) int {
	for i, kv := range s.keys {
		if kv.Key == key {
			return i
		}
	}
	if s.AllowCaseInsensitive {
		for i, kv := range s.keys {
			if strings.EqualFold(kv.Key, key) {
				return i
			}
		}
	}
	return -1
}

// Get returns the KeyValue for key, if present.
func (s *ConfigurationKeyStore) Get(key string) (ocpp.KeyValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(key)
	if i < 0 {
		return ocpp.KeyValue{}, false
	}
	return s.keys[i], true
}

// GetAll returns the requested keys (or every key, if none requested) and
// the subset of requested keys that were not found (GetConfiguration).
func (s *ConfigurationKeyStore) GetAll(requested []string) (found []ocpp.KeyValue, unknown []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(requested) == 0 {
		return append([]ocpp.KeyValue{}, s.keys...), nil
	}
	for _, key := range requested {
		if i := s.indexOf(key); i >= 0 {
			found = append(found, s.keys[i])
		} else {
			unknown = append(unknown, key)
		}
	}
	return found, unknown
}

// Seed inserts key unconditionally, overwriting any existing entry with the
// same key (used to (re)seed OCPP keys on init).
func (s *ConfigurationKeyStore) Seed(key string, value string, readonly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := value
	if i := s.indexOf(key); i >= 0 {
		s.keys[i] = ocpp.KeyValue{Key: key, Value: &v, Readonly: readonly}
		return
	}
	s.keys = append(s.keys, ocpp.KeyValue{Key: key, Value: &v, Readonly: readonly})
}

// Set updates an existing key's value, subject to its readonly flag
// (ChangeConfiguration). Returns an error if the key does not exist
// or is readonly.
func (s *ConfigurationKeyStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(key)
	if i < 0 {
		return fmt.Errorf("unknown configuration key %q", key)
	}
	if s.keys[i].Readonly {
		return fmt.Errorf("configuration key %q is readonly", key)
	}
	v := value
	s.keys[i].Value = &v
	return nil
}

// Add inserts a new user-defined key (used by templates for vendor keys).
func (s *ConfigurationKeyStore) Add(key, value string, readonly bool) {
	s.Seed(key, value, readonly)
}

// Delete removes the first matching key.
func (s *ConfigurationKeyStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(key); i >= 0 {
		s.keys = append(s.keys[:i], s.keys[i+1:]...)
	}
}

// persistedConfiguration is the on-disk shape of a per-station configuration
// file.
type persistedConfiguration struct {
	StationInfo      json.RawMessage  `json:"stationInfo"`
	ConfigurationKey []ocpp.KeyValue  `json:"configurationKey"`
}

// SaveTo atomically persists the store (write to a temp file, then rename)
// so a crash mid-write never corrupts the previous file.
func (s *ConfigurationKeyStore) SaveTo(path string, stationInfo json.RawMessage) error {
	s.mu.RLock()
	doc := persistedConfiguration{StationInfo: stationInfo, ConfigurationKey: append([]ocpp.KeyValue{}, s.keys...)}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create configuration directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp configuration file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp configuration file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp configuration file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename configuration file: %w", err)
	}
	return nil
}

// LoadConfigurationFrom reads a previously persisted configuration file. It
// returns found=false with a nil error if the file does not exist, so
// callers can fall back to deriving configuration from the template.
func LoadConfigurationFrom(path string) (*ConfigurationKeyStore, json.RawMessage, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("read configuration file: %w", err)
	}

	var doc persistedConfiguration
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, false, fmt.Errorf("unmarshal configuration file: %w", err)
	}

	store := NewConfigurationKeyStore()
	store.keys = doc.ConfigurationKey
	return store, doc.StationInfo, true, nil
}
