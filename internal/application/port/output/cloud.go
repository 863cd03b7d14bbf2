package output

import (
	"context"

	"github.com/xiaoshi569/Geminijson/internal/domain/entity"
)

// ProjectCreation is the outcome of a project-creation call. The console
// API reports success before the project is fully materialized, so
// ProjectID may be empty on a nominally successful call; callers treat
// that as a degraded success, not an error.
type ProjectCreation struct {
	ProjectID   string
	DisplayName string
	OperationID string
}

// BrandCreation is the outcome of an OAuth consent screen creation call.
// The backend may return an in-progress operation handle instead of a
// completed brand.
type BrandCreation struct {
	OperationName string
	Done          bool
}

// CloudConsolePort is the contract with the cloud console HTTP API. All
// calls require session cookies to have been installed first; they are
// single attempts with no internal retry.
type CloudConsolePort interface {
	// SetCookies installs the browser session ("name=value; ..." form).
	// Fails when the string yields no cookies or lacks the SAPISID token
	// the signing scheme needs.
	SetCookies(cookieString string) error

	// CurrentUserEmail resolves the signed-in account's email address.
	CurrentUserEmail(ctx context.Context) (string, error)

	// ValidateProjectID reports whether the candidate id is still free.
	ValidateProjectID(ctx context.Context, projectID string) (bool, error)

	// CreateProject creates a project with an explicitly assigned id.
	CreateProject(ctx context.Context, name, projectID string) (*ProjectCreation, error)

	// GetProjectNumber looks up the numeric id of a created project.
	// Returns "" with a nil error while the backend has not caught up yet.
	GetProjectNumber(ctx context.Context, projectID string) (string, error)

	// BrandExists checks whether the project already has a consent screen.
	BrandExists(ctx context.Context, projectNumber string) (bool, error)

	// CreateBrand creates the OAuth consent screen. "Already exists" style
	// failures surface as errors; the caller decides how benign they are.
	CreateBrand(ctx context.Context, projectNumber, projectID, supportEmail string) (*BrandCreation, error)

	// CreateOAuthClient creates a web client and returns its credentials.
	CreateOAuthClient(ctx context.Context, projectNumber string) (*entity.OAuthClientRecord, error)
}
