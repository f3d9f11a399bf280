package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add payroll records", "add_payroll_records"},
		{"Add-Wallet-Index", "add_wallet_index"},
		{"DEDUCTION__LEDGER", "deduction_ledger"},
		{"  spaces  ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"v2 payslips", "v2_payslips"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()

	mf, err := CreateMigration(dir, "add payroll records", "records per employee and period")
	require.NoError(t, err)
	assert.Equal(t, "000001", mf.Version)
	assert.Equal(t, filepath.Join(dir, "000001_add_payroll_records.up.sql"), mf.UpPath)
	assert.Equal(t, filepath.Join(dir, "000001_add_payroll_records.down.sql"), mf.DownPath)

	up, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "-- add_payroll_records")
	assert.Contains(t, string(up), "-- records per employee and period")
	assert.Contains(t, string(up), "BEGIN;")

	down, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "(rollback)")

	t.Run("next version continues the sequence", func(t *testing.T) {
		next, err := CreateMigration(dir, "wallet index", "")
		require.NoError(t, err)
		assert.Equal(t, "000002", next.Version)

		up, err := os.ReadFile(next.UpPath)
		require.NoError(t, err)
		assert.NotContains(t, string(up), "-- \n")
	})

	t.Run("empty name is rejected", func(t *testing.T) {
		_, err := CreateMigration(dir, "!!!", "")
		assert.Error(t, err)
	})

	t.Run("creates missing directory", func(t *testing.T) {
		nested := filepath.Join(dir, "nested", "migrations")
		mf, err := CreateMigration(nested, "init", "")
		require.NoError(t, err)
		assert.FileExists(t, mf.UpPath)
	})
}

func TestListMigrations(t *testing.T) {
	t.Run("missing directory is empty", func(t *testing.T) {
		list, err := ListMigrations(filepath.Join(t.TempDir(), "absent"))
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("orders by version and tracks down files", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{
			"000010_payslips.up.sql",
			"000010_payslips.down.sql",
			"000002_wallets.up.sql",
			"000001_payroll_core.up.sql",
			"000001_payroll_core.down.sql",
			"README.md",
			"notes_without_version.up.sql",
		} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("-- sql"), 0o644))
		}
		require.NoError(t, os.Mkdir(filepath.Join(dir, "000003_dir.up.sql"), 0o755))

		list, err := ListMigrations(dir)
		require.NoError(t, err)
		require.Len(t, list, 3)

		assert.Equal(t, uint(1), list[0].Version)
		assert.Equal(t, "payroll_core", list[0].Name)
		assert.True(t, list[0].HasDown)

		assert.Equal(t, uint(2), list[1].Version)
		assert.False(t, list[1].HasDown)

		assert.Equal(t, "000010_payslips", list[2].BaseName())
	})
}

func TestListMigrations_RepositorySchema(t *testing.T) {
	list, err := ListMigrations(filepath.Join("..", "..", "..", "migrations"))
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Equal(t, "payroll_core", list[0].Name)
	for _, m := range list {
		assert.True(t, m.HasDown, "migration %s has no down file", m.BaseName())
		assert.False(t, strings.Contains(m.Name, " "))
	}
}

func TestStatus_UpToDate(t *testing.T) {
	assert.True(t, Status{Version: 3, Latest: 3}.UpToDate())
	assert.False(t, Status{Version: 2, Latest: 3}.UpToDate())
	assert.False(t, Status{Version: 3, Latest: 3, Dirty: true}.UpToDate())
}
