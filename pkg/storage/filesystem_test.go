package storage

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveReadList(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save("spool/b.json", []byte(`{"b":1}`))
	require.NoError(t, err)
	assert.Equal(t, "spool/b.json", name)
	_, err = store.Save("spool/a.json", []byte(`{"a":1}`))
	require.NoError(t, err)
	n, err := store.SaveStream("spool/readme.txt", strings.NewReader("hi"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	names, err := store.List("spool", ".json")
	require.NoError(t, err)
	assert.Equal(t, []string{"spool/a.json", "spool/b.json"}, names)

	data, err := store.Read("spool/a.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	require.NoError(t, store.Delete("spool/a.json"))
	require.NoError(t, store.Delete("spool/a.json"))
	_, err = store.Open("spool/a.json")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	empty, err := store.List("missing", "")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLocalStorageRejectsEscapes(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../outside.txt", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = store.Open("/etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidPath)
	assert.ErrorIs(t, store.DeleteDir(""), ErrInvalidPath)
}

func TestLocalStorageDeleteDir(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = store.Save("students/s-1/profile.jpg", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, store.DeleteDir("students/s-1"))
	_, err = store.Read("students/s-1/profile.jpg")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
