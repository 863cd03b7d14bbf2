package gcloud

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"github.com/xiaoshi569/Geminijson/internal/application/port/output"
	"github.com/xiaoshi569/Geminijson/internal/domain/entity"
)

var (
	brandDisplayNames = []string{
		"Smart Assistant", "Data Insights", "Cloud Service",
		"Mobile App", "Admin Console", "API Service", "Web App",
	}
	clientDisplayNames = []string{
		"Web Client", "API Client", "Site App", "Frontend Client", "Web Service",
	}
)

// CurrentUserEmail resolves the signed-in account's address, first from
// the userinfo endpoint, then from the console user service.
func (c *Client) CurrentUserEmail(ctx context.Context) (string, error) {
	auth, err := c.authHeader(false)
	if err != nil {
		return "", err
	}

	var info struct {
		Email     string `json:"email"`
		UserEmail string `json:"userEmail"`
	}
	if err := c.getJSON(ctx, c.cfg.userInfoURL(), auth, &info); err == nil {
		if info.Email != "" {
			return info.Email, nil
		}
	}

	userSvc := "https://cloudconsole-pa.clients6.google.com/v3/entityServices/ConsoleUserService/userInfo?key=" + c.cfg.APIKey
	if err := c.getJSON(ctx, userSvc, auth, &info); err != nil {
		return "", fmt.Errorf("gcloud: resolve user email: %w", err)
	}
	if info.Email != "" {
		return info.Email, nil
	}
	if info.UserEmail != "" {
		return info.UserEmail, nil
	}
	return "", fmt.Errorf("gcloud: user email not present in response")
}

// BrandExists lists the project's OAuth brands.
func (c *Client) BrandExists(ctx context.Context, projectNumber string) (bool, error) {
	payload := []any{
		map[string]any{
			"operationName": "ListBrands",
			"variables": map[string]any{
				"parent": "projects/" + projectNumber,
			},
			"query": `query ListBrands($parent: String!) {
  listBrands(parent: $parent) {
    brands {
      name
      supportEmail
      applicationTitle
    }
  }
}`,
		},
	}

	var res []struct {
		Results []struct {
			Data struct {
				ListBrands struct {
					Brands []struct {
						Name string `json:"name"`
					} `json:"brands"`
				} `json:"listBrands"`
			} `json:"data"`
		} `json:"results"`
	}

	err := c.postJSON(ctx, c.cfg.oauthBase()+"/schemas/OAUTH_GRAPHQL:batchGraphql", payload, nil, false, &res)
	if err != nil {
		return false, err
	}

	if len(res) == 0 || len(res[0].Results) == 0 {
		return false, nil
	}
	return len(res[0].Results[0].Data.ListBrands.Brands) > 0, nil
}

// CreateBrand creates the OAuth consent screen via the CreateBrandInfo
// mutation. The backend may answer with an operation handle that is still
// in progress; callers decide how long to wait for it.
func (c *Client) CreateBrand(ctx context.Context, projectNumber, projectID, supportEmail string) (*output.BrandCreation, error) {
	displayName := brandDisplayNames[rand.Intn(len(brandDisplayNames))]

	payload := map[string]any{
		"requestContext": map[string]any{
			"platformMetadata": map[string]any{"platformType": "RIF"},
			"clientVersion":    "pantheon.pangular_20250915.01_p0",
			"pagePath":         "/auth/overview/create",
			"clientSessionId":  strings.ToUpper(uuid.NewString()),
			"projectId":        projectID,
			"selectedPurview":  map[string]any{"projectId": projectID},
			"jurisdiction":     "global",
			"localizationData": map[string]any{
				"locale":   "en_US",
				"timezone": "Etc/UTC",
			},
		},
		"operationName": "CreateBrandInfo",
		"variables": map[string]any{
			"request": map[string]any{
				"projectNumber":   projectNumber,
				"displayName":     displayName,
				"supportEmail":    supportEmail,
				"developerEmails": []string{supportEmail},
				"visibility":      "EXTERNAL",
				"publishState":    "TESTING",
			},
		},
	}

	headers := map[string]string{
		"X-Server-Token":            c.serverToken(),
		"X-Goog-First-Party-Reauth": c.firstPartyReauth(),
	}

	var res []struct {
		Results []struct {
			Errors []struct {
				Message string `json:"message"`
			} `json:"errors"`
			Data struct {
				CreateBrandInfo struct {
					Name string `json:"name"`
					Done bool   `json:"done"`
				} `json:"createBrandInfo"`
			} `json:"data"`
		} `json:"results"`
	}

	c.logger.Info("creating OAuth brand",
		"display_name", displayName, "project_number", projectNumber, "support_email", supportEmail)

	err := c.postJSON(ctx, c.cfg.oauthBase()+"/schemas/OAUTH_GRAPHQL:batchGraphql", payload, headers, false, &res)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 || len(res[0].Results) == 0 {
		return nil, fmt.Errorf("gcloud: brand creation response missing results")
	}
	result := res[0].Results[0]

	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("gcloud: create brand: %s", result.Errors[0].Message)
	}

	brand := result.Data.CreateBrandInfo
	if brand.Name == "" && !brand.Done {
		return nil, fmt.Errorf("gcloud: brand creation response missing operation")
	}
	return &output.BrandCreation{OperationName: brand.Name, Done: brand.Done}, nil
}

// CreateOAuthClient creates a web client over the clientauthconfig REST
// API and returns the issued credential pair.
func (c *Client) CreateOAuthClient(ctx context.Context, projectNumber string) (*entity.OAuthClientRecord, error) {
	displayName := fmt.Sprintf("%s %d", clientDisplayNames[rand.Intn(len(clientDisplayNames))], rand.Intn(999)+1)

	payload := map[string]any{
		"type":               "WEB",
		"displayName":        displayName,
		"postMessageOrigins": []string{},
		"redirectUris":       []string{},
		"authType":           "SHARED_SECRET",
		"brandId":            projectNumber,
		"projectNumber":      projectNumber,
	}

	headers := map[string]string{
		"X-Goog-First-Party-Reauth": c.firstPartyReauth(),
		"Accept":                    "application/json, text/plain, */*",
	}

	var res struct {
		ClientID      string   `json:"clientId"`
		DisplayName   string   `json:"displayName"`
		RedirectURIs  []string `json:"redirectUris"`
		ClientSecrets []struct {
			ClientSecret string `json:"clientSecret"`
		} `json:"clientSecrets"`
	}

	c.logger.Info("creating OAuth client", "display_name", displayName, "project_number", projectNumber)

	err := c.postJSON(ctx, c.cfg.clientAuthURL(), payload, headers, false, &res)
	if err != nil {
		return nil, err
	}

	if res.ClientID == "" {
		return nil, fmt.Errorf("gcloud: client creation response missing clientId")
	}

	record := &entity.OAuthClientRecord{
		ClientID:     res.ClientID,
		DisplayName:  res.DisplayName,
		RedirectURIs: res.RedirectURIs,
	}
	if len(res.ClientSecrets) > 0 {
		record.ClientSecret = res.ClientSecrets[0].ClientSecret
	}
	if record.ClientSecret == "" {
		c.logger.Warn("client created without secret, check the console", "client_id", res.ClientID)
	}
	return record, nil
}
