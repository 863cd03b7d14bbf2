package rodagent

import (
	"context"
	"fmt"
	"time"

	"github.com/xiaoshi569/Geminijson/internal/application/port/output"
	"github.com/xiaoshi569/Geminijson/internal/domain/entity"
	"github.com/xiaoshi569/Geminijson/internal/infrastructure/transport"
)

const (
	heartbeatInterval = 20 * time.Second

	// cookieDomain scopes getCookies to the accounts the console
	// automation needs.
	cookieDomain = "google.com"
)

// Agent connects the browser to the relay: it announces itself, executes
// incoming commands against the browser and replies with correlated
// responses. Commands run one at a time, in arrival order.
type Agent struct {
	link    *transport.Link
	browser *Browser
	logger  output.LoggerPort
}

func NewAgent(relayURL string, browser *Browser, logger output.LoggerPort) *Agent {
	link := transport.NewLink(transport.Config{
		URL: relayURL,
		Announce: entity.Envelope{
			Type:    entity.TypeAgentConnect,
			Message: "browser agent connected",
		},
	}, logger)

	a := &Agent{link: link, browser: browser, logger: logger}
	link.OnMessage(a.handleMessage)
	return a
}

// Run services the relay link until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) {
	go a.heartbeat(ctx)
	a.link.Run(ctx)
}

// heartbeat keeps intermediaries from idling the connection out. Send
// errors while disconnected are expected and ignored.
func (a *Agent) heartbeat(ctx context.Context) {
	t := time.NewTicker(heartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = a.link.Send(&entity.Envelope{Type: entity.TypePing})
		}
	}
}

func (a *Agent) handleMessage(raw []byte) {
	env, err := entity.DecodeEnvelope(raw)
	if err != nil {
		a.logger.Warn("dropping malformed message", "error", err)
		return
	}
	if !env.IsCommand() {
		return
	}

	a.logger.Info("executing command", "command", env.Command, "id", env.ID)
	result := a.execute(env)

	reply := &entity.Envelope{
		Type:    entity.TypeResponse,
		Command: env.Command,
		ID:      env.ID,
		Result:  &result,
	}
	if err := a.link.Send(reply); err != nil {
		a.logger.Warn("failed to send response", "command", env.Command, "error", err)
	}
}

func (a *Agent) execute(env *entity.Envelope) entity.CommandResult {
	data, err := a.dispatch(env.Command, env.Params)
	if err != nil {
		a.logger.Warn("command failed", "command", env.Command, "error", err)
		return entity.CommandResult{Success: false, Message: err.Error()}
	}
	return entity.CommandResult{Success: true, Data: data}
}

func (a *Agent) dispatch(command string, params map[string]any) (any, error) {
	switch command {
	case entity.CmdOpenTab:
		tab, err := a.browser.OpenTab(stringParam(params, "url"))
		if err != nil {
			return nil, err
		}
		return tab, nil

	case entity.CmdGetCurrentTab:
		tab, err := a.browser.CurrentTab()
		if err != nil {
			return nil, err
		}
		return tab, nil

	case entity.CmdGetAllTabs:
		return a.browser.AllTabs(), nil

	case entity.CmdClickElement:
		selector := stringParam(params, "selector")
		if selector == "" {
			return nil, fmt.Errorf("clickElement: missing selector")
		}
		return nil, a.browser.Click(selector)

	case entity.CmdFillInput:
		selector := stringParam(params, "selector")
		if selector == "" {
			return nil, fmt.Errorf("fillInput: missing selector")
		}
		return nil, a.browser.Fill(selector, stringParam(params, "value"))

	case entity.CmdExecuteScript:
		code := stringParam(params, "code")
		if code == "" {
			return nil, fmt.Errorf("executeScript: missing code")
		}
		return a.browser.Eval(code)

	case entity.CmdGetPageContent:
		return a.browser.PageContent()

	case entity.CmdScreenshot:
		return a.browser.Screenshot()

	case entity.CmdGetCookies:
		cookies, err := a.browser.CookieString(cookieDomain)
		if err != nil {
			return nil, err
		}
		return map[string]any{"cookies": cookies}, nil

	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}

func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	s, _ := params[key].(string)
	return s
}
