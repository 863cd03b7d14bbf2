package gcloud

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/xiaoshi569/Geminijson/internal/application/port/output"
)

// crmRequestContext is the boilerplate the CRM GraphQL endpoint expects
// around every query.
func (c *Client) crmRequestContext(projectID string) map[string]any {
	return map[string]any{
		"clientVersion":   "pantheon.pangular_20250924.10_p0",
		"pagePath":        "/welcome",
		"clientSessionId": strings.ToUpper(uuid.NewString()),
		"projectId":       projectID,
		"selectedPurview": map[string]any{"projectId": projectID},
		"jurisdiction":    "global",
		"localizationData": map[string]any{
			"locale":   "en_US",
			"timezone": "Etc/UTC",
		},
	}
}

// ValidateProjectID asks the console whether the candidate id is free.
func (c *Client) ValidateProjectID(ctx context.Context, projectID string) (bool, error) {
	payload := map[string]any{
		"requests": []any{
			map[string]any{
				"@type": "type.googleapis.com/google.internal.cloud.console.clientapi.crm.CrmGraphqlBatchRequest",
				"graphqlQueries": []any{
					map[string]any{
						"query": fmt.Sprintf(`query { projectIdValidator(projectId: %q) { error } }`, projectID),
					},
				},
			},
		},
	}

	var res struct {
		Responses []struct {
			GraphqlResponses []struct {
				Data struct {
					ProjectIDValidator struct {
						Error *string `json:"error"`
					} `json:"projectIdValidator"`
				} `json:"data"`
			} `json:"graphqlResponses"`
		} `json:"responses"`
	}

	err := c.postJSON(ctx, c.cfg.crmBase()+"/schemas/CRM_GRAPHQL:batchGraphql", payload, nil, true, &res)
	if err != nil {
		return false, err
	}

	if len(res.Responses) == 0 || len(res.Responses[0].GraphqlResponses) == 0 {
		return false, fmt.Errorf("gcloud: validator response missing data")
	}
	return res.Responses[0].GraphqlResponses[0].Data.ProjectIDValidator.Error == nil, nil
}

// CreateProject fires the async CREATE entity call with an explicitly
// assigned project id. The operation completes in the background; the
// response's phantom rows carry the project identity when available.
func (c *Client) CreateProject(ctx context.Context, name, projectID string) (*output.ProjectCreation, error) {
	phantomRow := map[string]any{
		"displayName":    name,
		"type":           "PROJECT",
		"lifecycleState": "ACTIVE",
		"id":             projectID,
		"organizationId": nil,
		"name":           "projects/" + projectID,
	}

	payload := map[string]any{
		"request": map[string]any{
			"@type":                              "type.googleapis.com/google.internal.cloud.console.clientapi.crm.CreateProjectRequest",
			"enableCloudApisInServiceManager":    true,
			"assignedIdForDisplay":               projectID,
			"generateProjectId":                  false,
			"name":                               name,
			"isAe4B":                             false,
			"billingAccountId":                   nil,
			"inheritsBillingAccount":             false,
			"tags":                               map[string]any{},
			"noCloudProject":                     false,
			"phantomData":                        map[string]any{
				"phantomRows": []any{phantomRow},
			},
			"description": map[string]any{
				"descriptionKey": "panCreateProject",
				"descriptionArgs": map[string]any{
					"name":                 name,
					"assignedIdForDisplay": projectID,
					"isAe4B":               "false",
					"organizationId":       nil,
				},
			},
		},
	}

	headers := map[string]string{
		"X-Server-Token":            c.serverToken(),
		"X-Goog-First-Party-Reauth": c.firstPartyReauth(),
	}

	var res struct {
		Name     string `json:"name"`
		Metadata struct {
			PhantomData struct {
				PhantomRows []struct {
					DisplayName string `json:"displayName"`
					ID          string `json:"id"`
					Name        string `json:"name"`
				} `json:"phantomRows"`
			} `json:"phantomData"`
		} `json:"metadata"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	err := c.postJSON(ctx, c.cfg.crmBase()+"/entities/CRM_PROJECT/async/CREATE?alt=json", payload, headers, true, &res)
	if err != nil {
		return nil, err
	}

	if res.Error != nil {
		msg := res.Error.Message
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("gcloud: create project: %s", msg)
	}

	creation := &output.ProjectCreation{DisplayName: name}

	if strings.Contains(res.Name, "operations/") {
		creation.OperationID = res.Name
	}

	if rows := res.Metadata.PhantomData.PhantomRows; len(rows) > 0 {
		id := rows[0].ID
		if id == "" {
			id = strings.TrimPrefix(rows[0].Name, "projects/")
		}
		creation.ProjectID = id
		if rows[0].DisplayName != "" {
			creation.DisplayName = rows[0].DisplayName
		}
	} else if creation.OperationID != "" {
		// Accepted but no phantom rows: fall back to the id we assigned.
		creation.ProjectID = projectID
	}

	c.logger.Info("project create accepted",
		"project_id", creation.ProjectID, "operation", creation.OperationID)
	return creation, nil
}

// GetProjectNumber looks the numeric id up via the GetProject GraphQL
// operation. A created project is not immediately queryable, so an empty
// result with no error means "not yet available" and callers poll.
func (c *Client) GetProjectNumber(ctx context.Context, projectID string) (string, error) {
	payload := []any{
		map[string]any{
			"requestContext": c.crmRequestContext(projectID),
			"operationName":  "GetProject",
			"variables": map[string]any{
				"projectId": projectID,
			},
		},
	}

	var res []struct {
		Results []struct {
			Data struct {
				Project struct {
					ProjectNumber    json.Number `json:"projectNumber"`
					NumericProjectID json.Number `json:"numericProjectId"`
				} `json:"project"`
			} `json:"data"`
		} `json:"results"`
	}

	err := c.postJSON(ctx, c.cfg.crmBase()+"/schemas/CRM_GRAPHQL:batchGraphql", payload, nil, true, &res)
	if err != nil {
		// 400s while the project materializes are expected; report "not
		// yet" rather than failing the poll loop.
		if se, ok := err.(*StatusError); ok && se.Code == 400 {
			return "", nil
		}
		return "", err
	}

	if len(res) == 0 || len(res[0].Results) == 0 {
		return "", nil
	}

	project := res[0].Results[0].Data.Project
	if n := project.ProjectNumber.String(); n != "" && n != "0" {
		return n, nil
	}
	if n := project.NumericProjectID.String(); n != "" && n != "0" {
		return n, nil
	}
	return "", nil
}
