package di

import (
	"fmt"
	"time"

	"github.com/xiaoshi569/Geminijson/internal/application/port/output"
	"github.com/xiaoshi569/Geminijson/internal/application/usecase"
	"github.com/xiaoshi569/Geminijson/internal/domain/entity"
	"github.com/xiaoshi569/Geminijson/internal/infrastructure/console"
	"github.com/xiaoshi569/Geminijson/internal/infrastructure/dispatcher"
	"github.com/xiaoshi569/Geminijson/internal/infrastructure/env"
	"github.com/xiaoshi569/Geminijson/internal/infrastructure/gcloud"
	"github.com/xiaoshi569/Geminijson/internal/infrastructure/logger"
	"github.com/xiaoshi569/Geminijson/internal/infrastructure/store"
	"github.com/xiaoshi569/Geminijson/internal/infrastructure/transport"
)

// Container wires the console process: the relay link, the command
// dispatcher on top of it, the cloud console client, the credential
// store and the provisioning workflow.
type Container struct {
	Logger     output.LoggerPort
	Link       *transport.Link
	Dispatcher *dispatcher.Dispatcher
	Cloud      *gcloud.Client
	Store      *store.FileStore
	Provision  *usecase.ProvisionUseCase
	Console    *console.Console
}

type Config struct {
	RelayURL      string
	CredentialDir string
	APIKey        string
	CookieTimeout time.Duration
}

// ConfigFromEnv reads configuration from .env / the process environment.
func ConfigFromEnv() Config {
	e := env.NewEnvService()
	return Config{
		RelayURL:      e.GetDefault("RELAY_URL", "ws://127.0.0.1:8765/ws"),
		CredentialDir: e.GetDefault("CREDENTIAL_DIR", "credentials"),
		APIKey:        e.Get("CONSOLE_API_KEY"),
		CookieTimeout: e.GetDuration("COOKIE_TIMEOUT", 10*time.Second),
	}
}

func NewContainer(cfg Config) (*Container, error) {
	log, err := logger.NewLoggerAdapter("console")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	link := transport.NewLink(transport.Config{
		URL: cfg.RelayURL,
		Announce: entity.Envelope{
			Type:    entity.TypeControllerConnect,
			Message: "console connected",
		},
	}, log)

	disp := dispatcher.New(link, log)
	link.OnMessage(disp.HandleMessage)
	link.OnStateChange(disp.HandleLinkState)

	cloudCfg := gcloud.DefaultConfig()
	if cfg.APIKey != "" {
		cloudCfg.APIKey = cfg.APIKey
	}
	cloud := gcloud.NewClient(cloudCfg, log)

	fileStore, err := store.NewFileStore(cfg.CredentialDir, log)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}

	provCfg := usecase.DefaultProvisionConfig()
	if cfg.CookieTimeout > 0 {
		provCfg.CookieTimeout = cfg.CookieTimeout
	}
	prov := usecase.NewProvisionUseCase(disp, cloud, fileStore, log, provCfg)

	con := console.NewConsole(disp, prov, log)
	prov.Progress = con.Progress
	disp.OnPresenceChange(con.NotifyPresence)

	return &Container{
		Logger:     log,
		Link:       link,
		Dispatcher: disp,
		Cloud:      cloud,
		Store:      fileStore,
		Provision:  prov,
		Console:    con,
	}, nil
}

func (c *Container) Close() {
	if c.Logger != nil {
		c.Logger.Close()
	}
}
