package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/xiaoshi569/Geminijson/internal/application/port/input"
	"github.com/xiaoshi569/Geminijson/internal/application/port/output"
	"github.com/xiaoshi569/Geminijson/internal/application/service"
	"github.com/xiaoshi569/Geminijson/internal/domain/entity"
)

// ProvisionConfig tunes the workflow's waits. Steps that talk to the
// console API are single attempts; only the project-number lookup polls.
type ProvisionConfig struct {
	// ProjectPrefix seeds the generated project id.
	ProjectPrefix string

	// CookieTimeout bounds the getCookies round trip to the agent.
	CookieTimeout time.Duration

	// NumberInitialDelay is slept before the first project-number lookup,
	// giving creation time to finish.
	NumberInitialDelay time.Duration
	NumberMaxAttempts  int
	NumberBackoffStep  time.Duration

	// BrandGracePeriod is slept when brand creation returns an operation
	// that is still in progress. The operation is not polled to
	// completion; the grace period is accepted best effort.
	BrandGracePeriod time.Duration
}

func DefaultProvisionConfig() ProvisionConfig {
	return ProvisionConfig{
		ProjectPrefix:      "project",
		CookieTimeout:      10 * time.Second,
		NumberInitialDelay: 10 * time.Second,
		NumberMaxAttempts:  6,
		NumberBackoffStep:  5 * time.Second,
		BrandGracePeriod:   5 * time.Second,
	}
}

var _ input.Provisioner = (*ProvisionUseCase)(nil)

// ProvisionUseCase drives the project + OAuth provisioning workflow:
// session cookie from the browser agent, project creation and number
// resolution against the console API, consent screen and client creation,
// with checkpoints to the credential store after project creation and
// after client creation. One run at a time.
type ProvisionUseCase struct {
	commander output.CommanderPort
	cloud     output.CloudConsolePort
	store     output.CredentialStorePort
	logger    output.LoggerPort
	cfg       ProvisionConfig

	// Progress receives one human-readable line per step. Optional.
	Progress func(line string)
}

func NewProvisionUseCase(
	commander output.CommanderPort,
	cloud output.CloudConsolePort,
	store output.CredentialStorePort,
	logger output.LoggerPort,
	cfg ProvisionConfig,
) *ProvisionUseCase {
	if cfg.NumberMaxAttempts <= 0 {
		cfg.NumberMaxAttempts = DefaultProvisionConfig().NumberMaxAttempts
	}
	return &ProvisionUseCase{
		commander: commander,
		cloud:     cloud,
		store:     store,
		logger:    logger,
		cfg:       cfg,
	}
}

func (uc *ProvisionUseCase) progress(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	uc.logger.Info(line)
	if uc.Progress != nil {
		uc.Progress(line)
	}
}

// Provision runs the workflow to a terminal state. A previously persisted
// project checkpoint is resumed instead of creating a second project.
func (uc *ProvisionUseCase) Provision(ctx context.Context) (*input.ProvisionResult, error) {
	cookieString, err := uc.acquireSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := uc.cloud.SetCookies(cookieString); err != nil {
		return nil, fmt.Errorf("session cookies unusable: %w", err)
	}

	state := &entity.ProvisionState{CookieString: cookieString}

	resumed, err := uc.resumeFromStore(state)
	if err != nil {
		return nil, err
	}

	if !resumed {
		uc.prepareIdentifiers(state)

		if err := uc.createProject(ctx, state); err != nil {
			return nil, err
		}
	}

	if !projectRecord(state).Resolved() {
		uc.resolveProjectNumber(ctx, state)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Checkpoint: the project exists, whether or not its number is
		// known yet. A later run resumes from here.
		if err := uc.store.WriteProjectRecord(projectRecord(state)); err != nil {
			return nil, fmt.Errorf("persist project record: %w", err)
		}
		uc.progress("Checkpoint saved: project %s (number: %s)", state.ProjectID, state.ProjectNumber)
	}

	if state.ProjectNumber == entity.ProjectNumberPending {
		uc.progress("Project number still pending; run again later to finish OAuth provisioning")
		return &input.ProvisionResult{
			ProjectID:     state.ProjectID,
			ProjectNumber: state.ProjectNumber,
		}, nil
	}

	if err := uc.createOAuthConsent(ctx, state); err != nil {
		return nil, err
	}

	if err := uc.createOAuthClient(ctx, state); err != nil {
		return nil, err
	}

	if err := uc.store.WriteOAuthClientRecord(*state.Client); err != nil {
		return nil, fmt.Errorf("persist oauth client record: %w", err)
	}
	uc.progress("Provisioning complete: client %s", state.Client.ClientID)

	return &input.ProvisionResult{
		ProjectID:     state.ProjectID,
		ProjectNumber: state.ProjectNumber,
		Client:        state.Client,
	}, nil
}

// acquireSession asks the browser agent for the console session cookies.
// Any failure here is terminal for the run.
func (uc *ProvisionUseCase) acquireSession(ctx context.Context) (string, error) {
	uc.progress("Requesting session cookies from browser...")

	res, err := uc.commander.SendAndWait(ctx, entity.CmdGetCookies, map[string]any{}, uc.cfg.CookieTimeout)
	if err != nil {
		return "", fmt.Errorf("acquire session: %w", err)
	}
	if !res.Success {
		return "", fmt.Errorf("acquire session: agent reported failure: %s", res.Message)
	}

	cookieString := cookieStringFromResult(res.Data)
	if cookieString == "" {
		return "", fmt.Errorf("acquire session: response contained no cookie string")
	}

	uc.progress("Session cookies received (%d bytes)", len(cookieString))
	return cookieString, nil
}

// cookieStringFromResult accepts both shapes the agent protocol has used:
// a bare string, or an object with a "cookies" field.
func cookieStringFromResult(data any) string {
	switch v := data.(type) {
	case string:
		return v
	case map[string]any:
		if s, ok := v["cookies"].(string); ok {
			return s
		}
	}
	return ""
}

// prepareIdentifiers derives the candidate project id and display name.
// Purely local; the id is randomized enough to be collision-tolerant and
// is not validated against the console before use.
func (uc *ProvisionUseCase) prepareIdentifiers(state *entity.ProvisionState) {
	state.ProjectID = generateProjectID(uc.cfg.ProjectPrefix)
	state.ProjectName = fmt.Sprintf("My Project %d", rand.Intn(9000)+1000)
	uc.progress("Prepared identifiers: id=%s name=%q", state.ProjectID, state.ProjectName)
}

func generateProjectID(prefix string) string {
	const chars = "abcdefghijklmnopqrstuvwxyz0123456789"
	n := rand.Intn(7) + 4 // 4..10 random characters
	b := make([]byte, n)
	for i := range b {
		b[i] = chars[rand.Intn(len(chars))]
	}
	return fmt.Sprintf("%s%s-%d", prefix, b, rand.Intn(900000)+100000)
}

// resumeFromStore loads a previous checkpoint, if any, so this run can
// finish OAuth provisioning without creating another project.
func (uc *ProvisionUseCase) resumeFromStore(state *entity.ProvisionState) (bool, error) {
	rec, err := uc.store.ReadProjectRecord()
	if err != nil {
		return false, fmt.Errorf("read project checkpoint: %w", err)
	}
	if rec == nil || rec.ProjectID == "" {
		return false, nil
	}

	state.ProjectID = rec.ProjectID
	state.ProjectNumber = rec.ProjectNumber
	uc.progress("Resuming from checkpoint: project %s (number: %s)", rec.ProjectID, rec.ProjectNumber)
	return true, nil
}

func (uc *ProvisionUseCase) createProject(ctx context.Context, state *entity.ProvisionState) error {
	uc.progress("Creating project %s...", state.ProjectID)

	creation, err := uc.cloud.CreateProject(ctx, state.ProjectName, state.ProjectID)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	if creation.ProjectID == "" {
		// Accepted without full metadata. Keep going with the id we
		// assigned; worst case the number lookup never resolves.
		uc.logger.Warn("project creation returned no id, continuing with assigned id",
			"project_id", state.ProjectID)
		uc.progress("Project accepted without metadata, continuing with %s", state.ProjectID)
		return nil
	}

	state.ProjectID = creation.ProjectID
	uc.progress("Project created: %s", state.ProjectID)
	return nil
}

// resolveProjectNumber polls the number lookup with linear backoff. An
// exhausted poll is NOT a failure: the sentinel value is a valid state
// that persists and resumes later.
func (uc *ProvisionUseCase) resolveProjectNumber(ctx context.Context, state *entity.ProvisionState) {
	uc.progress("Resolving project number (waiting %s for the backend)...", uc.cfg.NumberInitialDelay)

	policy := service.PollPolicy{
		MaxAttempts:  uc.cfg.NumberMaxAttempts,
		InitialDelay: uc.cfg.NumberInitialDelay,
		Backoff:      service.LinearBackoff(uc.cfg.NumberBackoffStep),
	}

	number, attempts, err := service.Poll(ctx, policy, func(attempt int) (string, bool, error) {
		n, err := uc.cloud.GetProjectNumber(ctx, state.ProjectID)
		if err != nil {
			uc.logger.Warn("project number lookup failed", "attempt", attempt, "error", err)
			return "", false, err
		}
		return n, n != "", nil
	})

	if err != nil {
		state.ProjectNumber = entity.ProjectNumberPending
		uc.progress("Project number not available after %d attempts, recording as pending", attempts)
		return
	}

	state.ProjectNumber = number
	uc.progress("Project number resolved: %s (after %d attempts)", number, attempts)
}

// createOAuthConsent creates the consent screen. "Already exists" is a
// success; an in-progress operation gets a fixed grace period instead of
// being polled to completion.
func (uc *ProvisionUseCase) createOAuthConsent(ctx context.Context, state *entity.ProvisionState) error {
	email, err := uc.cloud.CurrentUserEmail(ctx)
	if err != nil {
		return fmt.Errorf("resolve support email: %w", err)
	}

	exists, err := uc.cloud.BrandExists(ctx, state.ProjectNumber)
	if err != nil {
		// The check is advisory; creation handles the duplicate case.
		uc.logger.Warn("brand existence check failed", "error", err)
	}
	if exists {
		state.BrandCreated = true
		uc.progress("OAuth consent screen already exists, skipping creation")
		return nil
	}

	uc.progress("Creating OAuth consent screen...")
	brand, err := uc.cloud.CreateBrand(ctx, state.ProjectNumber, state.ProjectID, email)
	if err != nil {
		if isAlreadyExists(err) {
			state.BrandCreated = true
			uc.progress("OAuth consent screen already exists, continuing")
			return nil
		}
		return fmt.Errorf("create oauth consent screen: %w", err)
	}

	state.BrandCreated = true
	if !brand.Done {
		uc.progress("Consent screen creation in progress, waiting %s...", uc.cfg.BrandGracePeriod)
		if err := sleepCtx(ctx, uc.cfg.BrandGracePeriod); err != nil {
			return err
		}
	} else {
		uc.progress("OAuth consent screen created")
	}
	return nil
}

func (uc *ProvisionUseCase) createOAuthClient(ctx context.Context, state *entity.ProvisionState) error {
	uc.progress("Creating OAuth client...")

	client, err := uc.cloud.CreateOAuthClient(ctx, state.ProjectNumber)
	if err != nil {
		return fmt.Errorf("create oauth client: %w", err)
	}

	state.Client = client
	uc.progress("OAuth client created: %s", client.ClientID)
	return nil
}

// isAlreadyExists classifies console errors by message text; the API has
// no structured code for the duplicate case.
func isAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate")
}

func projectRecord(state *entity.ProvisionState) entity.ProjectRecord {
	return entity.ProjectRecord{
		ProjectID:     state.ProjectID,
		ProjectNumber: state.ProjectNumber,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
