package extern

import (
	"bytes"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/vesaa/sharedshape/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "state", StateFile))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStorePutUpserts(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Put(&models.Component{Path: "lib", URL: "u1", Initialized: true}))
	first, err := s.Get("lib")
	require.NoError(t, err)

	require.NoError(t, s.Put(&models.Component{Path: "lib", URL: "u2", CheckedOut: true, Revision: revA}))
	second, err := s.Get("lib")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "u2", second.URL)
	assert.True(t, second.CheckedOut)
	assert.Equal(t, revA, second.Revision)
	assert.False(t, second.Initialized)

	all, err := s.List()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStoreLookupMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	c, err := s.Lookup("nope")
	require.NoError(t, err)
	assert.Equal(t, "nope", c.Path)
	assert.False(t, c.Initialized)
	assert.Zero(t, c.ID)
}

func TestStoreListAndDelete(t *testing.T) {
	s := openTestStore(t)
	for _, p := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, s.Put(&models.Component{Path: p, URL: "u"}))
	}

	all, err := s.List()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].Path)
	assert.Equal(t, "zeta", all[2].Path)

	require.NoError(t, s.Delete("mid"))
	require.NoError(t, s.Delete("mid"))
	all, err = s.List()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStoreReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), StateFile)
	s, err := OpenStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(&models.Component{Path: "lib", URL: "u"}))
	require.NoError(t, s.Close())

	s, err = OpenStore(path)
	require.NoError(t, err)
	defer s.Close()
	c, err := s.Get("lib")
	require.NoError(t, err)
	assert.Equal(t, "u", c.URL)
}

func TestStoreMissingRowIsQuiet(t *testing.T) {
	var buf bytes.Buffer
	gormLog := logger.New(log.New(&buf, "", 0), logger.Config{LogLevel: logger.Warn})
	s, err := openStore(filepath.Join(t.TempDir(), StateFile), gormLog)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Lookup("fresh")
	require.NoError(t, err)
	require.NoError(t, s.Put(&models.Component{Path: "fresh", URL: "u"}))
	_, err = s.Get("gone")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NotContains(t, buf.String(), "record not found")
}
