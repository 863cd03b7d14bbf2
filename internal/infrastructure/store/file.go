// Package store persists provisioning checkpoints to flat files so a
// later run can resume from whatever a previous run managed to finish.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xiaoshi569/Geminijson/internal/application/port/output"
	"github.com/xiaoshi569/Geminijson/internal/domain/entity"
)

const (
	projectFile    = "project.json"
	clientFile     = "oauth_client.json"
	clientTextFile = "oauth_client.txt"
)

var _ output.CredentialStorePort = (*FileStore)(nil)

// FileStore overwrites each record wholesale on write. Concurrent writers
// are not supported; the single-run-at-a-time orchestrator is the only
// writer.
type FileStore struct {
	dir    string
	logger output.LoggerPort
}

func NewFileStore(dir string, logger output.LoggerPort) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

func (s *FileStore) ReadProjectRecord() (*entity.ProjectRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, projectFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read project record: %w", err)
	}

	var rec entity.ProjectRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse project record: %w", err)
	}
	return &rec, nil
}

func (s *FileStore) WriteProjectRecord(rec entity.ProjectRecord) error {
	if err := s.writeJSON(projectFile, rec); err != nil {
		return err
	}
	s.logger.Info("project record persisted",
		"project_id", rec.ProjectID, "project_number", rec.ProjectNumber)
	return nil
}

func (s *FileStore) WriteOAuthClientRecord(rec entity.OAuthClientRecord) error {
	if err := s.writeJSON(clientFile, rec); err != nil {
		return err
	}

	// A plain-text copy for operators who just want to paste credentials.
	var b strings.Builder
	fmt.Fprintf(&b, "OAuth client credentials\n")
	fmt.Fprintf(&b, "created: %s\n\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "display name:  %s\n", rec.DisplayName)
	fmt.Fprintf(&b, "client id:     %s\n", rec.ClientID)
	fmt.Fprintf(&b, "client secret: %s\n", rec.ClientSecret)
	if len(rec.RedirectURIs) > 0 {
		fmt.Fprintf(&b, "redirect uris: %s\n", strings.Join(rec.RedirectURIs, ", "))
	}

	path := filepath.Join(s.dir, clientTextFile)
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("write %s: %w", clientTextFile, err)
	}

	s.logger.Info("oauth client record persisted", "client_id", rec.ClientID)
	return nil
}

func (s *FileStore) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
