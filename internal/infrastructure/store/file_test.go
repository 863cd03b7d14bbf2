package store

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaoshi569/Geminijson/internal/domain/entity"
	"github.com/xiaoshi569/Geminijson/internal/infrastructure/logger"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), logger.NewWriterAdapter(io.Discard))
	require.NoError(t, err)
	return s
}

func TestReadProjectRecord_AbsentIsNotAnError(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.ReadProjectRecord()
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestProjectRecordRoundTrip(t *testing.T) {
	s := newTestStore(t)

	in := entity.ProjectRecord{ProjectID: "projecta1b2-123456", ProjectNumber: "987654321"}
	require.NoError(t, s.WriteProjectRecord(in))

	out, err := s.ReadProjectRecord()
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in, *out)
}

func TestWriteProjectRecord_OverwritesPendingSentinel(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.WriteProjectRecord(entity.ProjectRecord{
		ProjectID:     "p1",
		ProjectNumber: entity.ProjectNumberPending,
	}))
	require.NoError(t, s.WriteProjectRecord(entity.ProjectRecord{
		ProjectID:     "p1",
		ProjectNumber: "4242",
	}))

	out, err := s.ReadProjectRecord()
	require.NoError(t, err)
	assert.Equal(t, "4242", out.ProjectNumber)
}

func TestReadProjectRecord_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, logger.NewWriterAdapter(io.Discard))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, projectFile), []byte("{broken"), 0600))

	_, err = s.ReadProjectRecord()
	require.Error(t, err)
}

func TestWriteOAuthClientRecord_WritesBothForms(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, logger.NewWriterAdapter(io.Discard))
	require.NoError(t, err)

	rec := entity.OAuthClientRecord{
		ClientID:     "123.apps.googleusercontent.com",
		ClientSecret: "GOCSPX-secret",
		DisplayName:  "Web client 1",
		RedirectURIs: []string{"http://localhost/callback"},
	}
	require.NoError(t, s.WriteOAuthClientRecord(rec))

	jsonData, err := os.ReadFile(filepath.Join(dir, clientFile))
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), rec.ClientID)

	txtData, err := os.ReadFile(filepath.Join(dir, clientTextFile))
	require.NoError(t, err)
	text := string(txtData)
	assert.Contains(t, text, rec.ClientID)
	assert.Contains(t, text, rec.ClientSecret)
	assert.Contains(t, text, "http://localhost/callback")
}

func TestFilesAreOwnerOnly(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, logger.NewWriterAdapter(io.Discard))
	require.NoError(t, err)

	require.NoError(t, s.WriteProjectRecord(entity.ProjectRecord{ProjectID: "p"}))

	info, err := os.Stat(filepath.Join(dir, projectFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
