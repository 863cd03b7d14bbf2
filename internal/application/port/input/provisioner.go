package input

import (
	"context"

	"github.com/xiaoshi569/Geminijson/internal/domain/entity"
)

// ProvisionResult summarizes a finished provisioning run.
type ProvisionResult struct {
	ProjectID     string
	ProjectNumber string
	Client        *entity.OAuthClientRecord
}

// Provisioner runs the full project + OAuth provisioning workflow against
// the live browser session. One run at a time.
type Provisioner interface {
	Provision(ctx context.Context) (*ProvisionResult, error)
}
