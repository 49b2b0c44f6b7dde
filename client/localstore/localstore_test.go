package localstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	defer s.Close()

	type doc struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	var missing doc
	found, err := s.Get("nope", &missing)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Put("d", doc{Name: "a", Count: 2}))
	var got doc
	found, err = s.Get("d", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, doc{Name: "a", Count: 2}, got)

	// Overwrite
	require.NoError(t, s.Put("d", doc{Name: "b", Count: 3}))
	found, err = s.Get("d", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "b", got.Name)

	require.NoError(t, s.Delete("d"))
	found, err = s.Get("d", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUpdate(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	defer s.Close()

	var list []string
	require.NoError(t, s.Update("l", &list, func() error {
		list = append(list, "one")
		return nil
	}))
	require.NoError(t, s.Update("l", &list, func() error {
		list = append(list, "two")
		return nil
	}))

	var got []string
	found, err := s.Get("l", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put("k", map[string]string{"a": "b"}))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	var got map[string]string
	found, err := s2.Get("k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "b", got["a"])
}
