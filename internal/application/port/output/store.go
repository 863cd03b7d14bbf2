package output

import "github.com/xiaoshi569/Geminijson/internal/domain/entity"

// CredentialStorePort persists provisioning checkpoints. Records are
// overwritten wholesale on each write; callers serialize access by running
// one provisioning run at a time.
type CredentialStorePort interface {
	// ReadProjectRecord returns the last persisted project checkpoint, or
	// (nil, nil) when none exists yet.
	ReadProjectRecord() (*entity.ProjectRecord, error)

	WriteProjectRecord(rec entity.ProjectRecord) error

	WriteOAuthClientRecord(rec entity.OAuthClientRecord) error
}
