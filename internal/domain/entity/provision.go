package entity

// ProjectNumberPending is the sentinel stored when a created project's
// numeric id could not be resolved before the lookup attempts were
// exhausted. It is a valid, non-terminal value: a later run may resolve
// and overwrite it.
const ProjectNumberPending = "pending"

// ProjectRecord is the checkpoint written after project creation.
type ProjectRecord struct {
	ProjectID     string `json:"project_id"`
	ProjectNumber string `json:"project_number"`
}

// Resolved reports whether the record carries a real project number.
func (r ProjectRecord) Resolved() bool {
	return r.ProjectNumber != "" && r.ProjectNumber != ProjectNumberPending
}

// OAuthClientRecord is the terminal checkpoint of a provisioning run.
type OAuthClientRecord struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	DisplayName  string   `json:"display_name"`
	RedirectURIs []string `json:"redirect_uris"`
}

// ProvisionState accumulates the values a provisioning run extracts from
// the browser session and from each completed step. One instance per run;
// runs never share state.
type ProvisionState struct {
	CookieString  string
	ProjectID     string
	ProjectName   string
	ProjectNumber string
	BrandCreated  bool
	Client        *OAuthClientRecord
}
