// Package console is the interactive operator frontend: a line-oriented
// command prompt that drives the browser agent through the relay and
// kicks off the provisioning workflow.
package console

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/xiaoshi569/Geminijson/internal/application/port/input"
	"github.com/xiaoshi569/Geminijson/internal/application/port/output"
	"github.com/xiaoshi569/Geminijson/internal/domain/entity"
)

const commandTimeout = 30 * time.Second

type Console struct {
	commander   output.CommanderPort
	provisioner input.Provisioner
	logger      output.LoggerPort

	reader *bufio.Reader
	out    io.Writer

	screenshotDir string
}

func NewConsole(commander output.CommanderPort, provisioner input.Provisioner, logger output.LoggerPort) *Console {
	return &Console{
		commander:     commander,
		provisioner:   provisioner,
		logger:        logger,
		reader:        bufio.NewReader(os.Stdin),
		out:           os.Stdout,
		screenshotDir: "screenshots",
	}
}

// NotifyPresence prints agent connect/disconnect transitions. Safe to
// call from other goroutines; it only writes a line.
func (c *Console) NotifyPresence(connected bool) {
	if connected {
		color.New(color.FgGreen).Fprintln(c.out, "\n[agent connected]")
	} else {
		color.New(color.FgYellow).Fprintln(c.out, "\n[agent disconnected]")
	}
}

// Progress prints one workflow step line. Wired into the provisioning
// use case.
func (c *Console) Progress(line string) {
	color.New(color.FgCyan).Fprintf(c.out, "  %s\n", line)
}

// Run reads commands until EOF, "quit", or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	c.banner()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fmt.Fprint(c.out, "> ")
		line, err := c.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read command: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}

		c.dispatch(ctx, line)
	}
}

func (c *Console) banner() {
	bold := color.New(color.Bold)
	bold.Fprintln(c.out, "Relay console. Type 'help' for commands.")
}

func (c *Console) dispatch(ctx context.Context, line string) {
	name, rest := splitCommand(line)

	switch name {
	case "help":
		c.printHelp()

	case "status":
		if c.commander.AgentConnected() {
			color.New(color.FgGreen).Fprintln(c.out, "agent: connected")
		} else {
			color.New(color.FgYellow).Fprintln(c.out, "agent: not connected")
		}

	case "open":
		c.runCommand(ctx, entity.CmdOpenTab, map[string]any{"url": rest})

	case "tab":
		c.runCommand(ctx, entity.CmdGetCurrentTab, map[string]any{})

	case "tabs":
		c.runCommand(ctx, entity.CmdGetAllTabs, map[string]any{})

	case "click":
		if rest == "" {
			c.printError(fmt.Errorf("usage: click <selector>"))
			return
		}
		c.runCommand(ctx, entity.CmdClickElement, map[string]any{"selector": rest})

	case "fill":
		selector, value := splitCommand(rest)
		if selector == "" || value == "" {
			c.printError(fmt.Errorf("usage: fill <selector> <value>"))
			return
		}
		c.runCommand(ctx, entity.CmdFillInput, map[string]any{"selector": selector, "value": value})

	case "js":
		if rest == "" {
			c.printError(fmt.Errorf("usage: js <code>"))
			return
		}
		c.runCommand(ctx, entity.CmdExecuteScript, map[string]any{"code": rest})

	case "content":
		c.runCommand(ctx, entity.CmdGetPageContent, map[string]any{})

	case "screenshot":
		c.screenshot(ctx)

	case "cookies":
		c.runCommand(ctx, entity.CmdGetCookies, map[string]any{})

	case "provision":
		c.provision(ctx)

	default:
		c.printError(fmt.Errorf("unknown command: %s (try 'help')", name))
	}
}

func (c *Console) printHelp() {
	help := []struct{ cmd, desc string }{
		{"status", "show agent connection state"},
		{"open <url>", "open a new browser tab"},
		{"tab", "show the active tab"},
		{"tabs", "list all tabs"},
		{"click <selector>", "click an element on the active tab"},
		{"fill <selector> <value>", "fill an input field"},
		{"js <code>", "run a script on the active tab"},
		{"content", "fetch the active tab's page content"},
		{"screenshot", "capture the active tab to a file"},
		{"cookies", "fetch the browser session cookies"},
		{"provision", "run project + OAuth client provisioning"},
		{"quit", "exit"},
	}
	for _, h := range help {
		fmt.Fprintf(c.out, "  %-26s %s\n", h.cmd, h.desc)
	}
}

func (c *Console) runCommand(ctx context.Context, command string, params map[string]any) {
	result, err := c.commander.SendAndWait(ctx, command, params, commandTimeout)
	if err != nil {
		c.printError(err)
		return
	}
	c.printResult(result)
}

func (c *Console) printResult(result *entity.CommandResult) {
	if !result.Success {
		c.printError(fmt.Errorf("agent: %s", result.Message))
		return
	}

	color.New(color.FgGreen).Fprintln(c.out, "ok")
	if result.Data == nil {
		return
	}
	pretty, err := json.MarshalIndent(result.Data, "", "  ")
	if err != nil {
		fmt.Fprintf(c.out, "%v\n", result.Data)
		return
	}
	color.New(color.Faint).Fprintln(c.out, string(pretty))
}

func (c *Console) printError(err error) {
	color.New(color.FgRed).Fprintf(c.out, "error: %v\n", err)
}

// screenshot captures the active tab and writes the image next to the
// process instead of dumping base64 to the terminal.
func (c *Console) screenshot(ctx context.Context) {
	result, err := c.commander.SendAndWait(ctx, entity.CmdScreenshot, map[string]any{}, commandTimeout)
	if err != nil {
		c.printError(err)
		return
	}
	if !result.Success {
		c.printError(fmt.Errorf("agent: %s", result.Message))
		return
	}

	data, _ := result.Data.(map[string]any)
	dataURL, _ := data["dataUrl"].(string)
	img, err := decodeDataURL(dataURL)
	if err != nil {
		c.printError(err)
		return
	}

	if err := os.MkdirAll(c.screenshotDir, 0o755); err != nil {
		c.printError(err)
		return
	}
	path := filepath.Join(c.screenshotDir, time.Now().Format("20060102_150405")+".jpg")
	if err := os.WriteFile(path, img, 0o644); err != nil {
		c.printError(err)
		return
	}
	color.New(color.FgGreen).Fprintf(c.out, "saved %s\n", path)
}

func decodeDataURL(dataURL string) ([]byte, error) {
	_, b64, ok := strings.Cut(dataURL, ",")
	if !ok {
		return nil, fmt.Errorf("screenshot response contained no image data")
	}
	img, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return img, nil
}

func (c *Console) provision(ctx context.Context) {
	bold := color.New(color.Bold)
	bold.Fprintln(c.out, "Starting provisioning workflow...")

	res, err := c.provisioner.Provision(ctx)
	if err != nil {
		c.printError(err)
		return
	}

	color.New(color.FgGreen).Fprintf(c.out, "done: project %s (number: %s)\n", res.ProjectID, res.ProjectNumber)
	if res.Client != nil {
		fmt.Fprintf(c.out, "  client id:     %s\n", res.Client.ClientID)
		fmt.Fprintf(c.out, "  client secret: %s\n", res.Client.ClientSecret)
	}
}

// splitCommand separates the first word from the remainder of the line.
func splitCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	name, rest, ok := strings.Cut(line, " ")
	if !ok {
		return line, ""
	}
	return name, strings.TrimSpace(rest)
}
