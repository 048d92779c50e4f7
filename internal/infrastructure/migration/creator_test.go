package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/mobilsoft/edire/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add bindings table", "add_bindings_table"},
		{"Add-Source-States", "add_source_states"},
		{"ADD__CHECKPOINT__INDEX", "add_checkpoint_index"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"_leading and trailing_", "leading_and_trailing"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "migrations")
	now := time.Date(2025, 3, 1, 12, 30, 45, 0, time.UTC)

	mf, err := CreateMigration(dir, "Add sync log index", "index sync logs by status", now)
	require.NoError(t, err)
	assert.Equal(t, "20250301123045", mf.Version)
	assert.Equal(t, filepath.Join(dir, "20250301123045_add_sync_log_index.up.sql"), mf.UpPath)
	assert.True(t, strings.HasSuffix(mf.DownPath, "_add_sync_log_index.down.sql"))

	up, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "-- Migration: add sync log index")
	assert.Contains(t, string(up), "index sync logs by status")

	down, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "(Rollback)")

	t.Run("existing pair is not overwritten", func(t *testing.T) {
		_, err := CreateMigration(dir, "Add sync log index", "", now)
		assert.Error(t, err)
	})

	t.Run("name without letters", func(t *testing.T) {
		_, err := CreateMigration(dir, "!!!", "", now)
		assert.Error(t, err)
	})
}

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_add_bindings.up.sql":   {Data: []byte("--")},
		"000002_add_bindings.down.sql": {Data: []byte("--")},
		"000001_init.up.sql":           {Data: []byte("--")},
		"000001_init.down.sql":         {Data: []byte("--")},
		"README.md":                    {Data: []byte("docs")},
		"subdir.up.sql/keep":           {Data: []byte("")},
	}
	got, err := ListMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_init", "000002_add_bindings"}, got)
}

func TestListMigrations_MissingDirectory(t *testing.T) {
	got, err := ListMigrations(os.DirFS(filepath.Join(t.TempDir(), "missing")))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListMigrations_Embedded(t *testing.T) {
	got, err := ListMigrations(migrations.FS)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"20250301000000_create_integration_tables",
		"20250301000100_create_erp_reference_tables",
	}, got)
}
