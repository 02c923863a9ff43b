package station

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationKeyStoreSeedAndGet(t *testing.T) {
	s := NewConfigurationKeyStore()
	s.Seed("HeartbeatInterval", "60", false)

	kv, ok := s.Get("HeartbeatInterval")
	require.True(t, ok)
	assert.Equal(t, "60", *kv.Value)
}

func TestConfigurationKeyStoreSetRejectsReadonly(t *testing.T) {
	s := NewConfigurationKeyStore()
	s.Seed("NumberOfConnectors", "2", true)

	err := s.Set("NumberOfConnectors", "5")
	assert.Error(t, err)
}

func TestConfigurationKeyStoreSetRejectsUnknownKey(t *testing.T) {
	s := NewConfigurationKeyStore()
	assert.Error(t, s.Set("DoesNotExist", "1"))
}

func TestConfigurationKeyStoreSetUpdatesWritableKey(t *testing.T) {
	s := NewConfigurationKeyStore()
	s.Seed("MeterValueSampleInterval", "60", false)
	require.NoError(t, s.Set("MeterValueSampleInterval", "30"))

	kv, _ := s.Get("MeterValueSampleInterval")
	assert.Equal(t, "30", *kv.Value)
}

func TestConfigurationKeyStoreCaseInsensitiveLookup(t *testing.T) {
	s := NewConfigurationKeyStore()
	s.AllowCaseInsensitive = true
	s.Seed("HeartbeatInterval", "60", false)

	kv, ok := s.Get("heartbeatinterval")
	require.True(t, ok)
	assert.Equal(t, "60", *kv.Value)
}

func TestConfigurationKeyStoreGetAllReportsUnknown(t *testing.T) {
	s := NewConfigurationKeyStore()
	s.Seed("A", "1", false)
	s.Seed("B", "2", false)

	found, unknown := s.GetAll([]string{"A", "Z"})
	require.Len(t, found, 1)
	assert.Equal(t, "A", found[0].Key)
	assert.Equal(t, []string{"Z"}, unknown)
}

func TestConfigurationKeyStoreGetAllEmptyRequestReturnsEverything(t *testing.T) {
	s := NewConfigurationKeyStore()
	s.Seed("A", "1", false)
	s.Seed("B", "2", false)

	found, unknown := s.GetAll(nil)
	assert.Len(t, found, 2)
	assert.Empty(t, unknown)
}

func TestConfigurationKeyStoreSaveAndLoadRoundTrip(t *testing.T) {
	s := NewConfigurationKeyStore()
	s.Seed("NumberOfConnectors", "2", true)
	s.Seed("HeartbeatInterval", "60", false)

	dir := t.TempDir()
	path := filepath.Join(dir, "abc123.json")
	require.NoError(t, s.SaveTo(path, []byte(`{"stationId":"CP-001"}`)))

	loaded, stationInfo, existed, err := LoadConfigurationFrom(path)
	require.NoError(t, err)
	require.True(t, existed)
	assert.JSONEq(t, `{"stationId":"CP-001"}`, string(stationInfo))

	kv, ok := loaded.Get("NumberOfConnectors")
	require.True(t, ok)
	assert.Equal(t, "2", *kv.Value)
}

func TestLoadConfigurationFromMissingFileReturnsNotExisted(t *testing.T) {
	dir := t.TempDir()
	_, _, existed, err := LoadConfigurationFrom(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestConfigurationKeyStoreDelete(t *testing.T) {
	s := NewConfigurationKeyStore()
	s.Seed("A", "1", false)
	s.Delete("A")
	_, ok := s.Get("A")
	assert.False(t, ok)
}
