package filex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLocal(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(p, []byte("0123456789"), 0o600))

	data, err := ReadLocal(p, 10)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	_, err = ReadLocal(p, 9)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestReadLocal_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadLocal(filepath.Join(dir, "missing.txt"), 10)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = ReadLocal(dir, 10)
	assert.ErrorContains(t, err, "not a regular file")
}
