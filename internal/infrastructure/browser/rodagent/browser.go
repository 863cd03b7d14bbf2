package rodagent

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// BrowserConfig mirrors the launcher flags the automation needs: the
// console has no headless support on the login flow, so headless stays
// off by default.
type BrowserConfig struct {
	Headless   bool
	NoSandbox  bool
	DevTools   bool
	SlowMotion time.Duration
	Timeout    time.Duration
}

func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:   false,
		NoSandbox:  true,
		DevTools:   false,
		SlowMotion: 0,
		Timeout:    10 * time.Second,
	}
}

// TabInfo is what tab listing commands report about one open tab.
type TabInfo struct {
	ID     int    `json:"tabId"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

// Browser owns the Chrome process and a set of numbered tabs. Tab ids
// are stable for the life of the process; commands address tabs by id
// and default to the active tab.
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	timeout  time.Duration

	mu      sync.Mutex
	tabs    map[int]*rod.Page
	nextID  int
	current int
}

func NewBrowser(cfg BrowserConfig) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		Devtools(cfg.DevTools).
		NoSandbox(cfg.NoSandbox).
		Delete("use-mock-keychain").
		Set("disable-web-security").
		Set("allow-running-insecure-content").
		Set("disable-setuid-sandbox")

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().
		ControlURL(url).
		SlowMotion(cfg.SlowMotion).
		MustConnect()

	b := &Browser{
		browser:  browser,
		launcher: l,
		timeout:  cfg.Timeout,
		tabs:     make(map[int]*rod.Page),
		nextID:   1,
		current:  0,
	}

	// Chrome starts with one tab already open; adopt it.
	if pages, err := browser.Pages(); err == nil && len(pages) > 0 {
		b.adopt(pages[0])
	}
	return b, nil
}

func (b *Browser) adopt(p *rod.Page) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.tabs[id] = p
	b.current = id
	return id
}

// OpenTab navigates a fresh tab and makes it the active one.
func (b *Browser) OpenTab(url string) (TabInfo, error) {
	if url == "" {
		url = "about:blank"
	}
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return TabInfo{}, fmt.Errorf("open tab: %w", err)
	}
	page.Timeout(b.timeout).WaitLoad()
	id := b.adopt(page)
	return b.tabInfo(id, page), nil
}

func (b *Browser) tabInfo(id int, p *rod.Page) TabInfo {
	info := TabInfo{ID: id, Active: id == b.activeID()}
	if pi, err := p.Info(); err == nil {
		info.URL = pi.URL
		info.Title = pi.Title
	}
	return info
}

func (b *Browser) activeID() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// CurrentTab reports the active tab.
func (b *Browser) CurrentTab() (TabInfo, error) {
	id, page, err := b.activePage()
	if err != nil {
		return TabInfo{}, err
	}
	return b.tabInfo(id, page), nil
}

// AllTabs lists every tracked tab in id order, dropping ones whose
// pages have been closed from the browser side.
func (b *Browser) AllTabs() []TabInfo {
	b.mu.Lock()
	ids := make([]int, 0, len(b.tabs))
	for id := range b.tabs {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	sort.Ints(ids)

	out := make([]TabInfo, 0, len(ids))
	for _, id := range ids {
		b.mu.Lock()
		page := b.tabs[id]
		b.mu.Unlock()
		if page == nil {
			continue
		}
		if _, err := page.Info(); err != nil {
			b.mu.Lock()
			delete(b.tabs, id)
			b.mu.Unlock()
			continue
		}
		out = append(out, b.tabInfo(id, page))
	}
	return out
}

func (b *Browser) activePage() (int, *rod.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	page, ok := b.tabs[b.current]
	if !ok || page == nil {
		return 0, nil, fmt.Errorf("no active tab")
	}
	return b.current, page, nil
}

// Click resolves the selector on the active tab, CSS by default and
// XPath when the selector looks like one.
func (b *Browser) Click(selector string) error {
	_, page, err := b.activePage()
	if err != nil {
		return err
	}

	el, err := b.findElement(page, selector)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	page.WaitIdle(2 * time.Second)
	return nil
}

// Fill clears the target field and types the value.
func (b *Browser) Fill(selector, value string) error {
	_, page, err := b.activePage()
	if err != nil {
		return err
	}

	el, err := b.findElement(page, selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("input failed: %w", err)
	}
	return nil
}

func (b *Browser) findElement(page *rod.Page, selector string) (*rod.Element, error) {
	var el *rod.Element
	var err error
	if strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(") {
		el, err = page.Timeout(b.timeout).ElementX(selector)
	} else {
		el, err = page.Timeout(b.timeout).Element(selector)
	}
	if err != nil {
		return nil, fmt.Errorf("element not found: %s: %w", selector, err)
	}
	return el, nil
}

// Eval runs a script in the active tab and returns its JSON value.
func (b *Browser) Eval(code string) (any, error) {
	_, page, err := b.activePage()
	if err != nil {
		return nil, err
	}
	res, err := page.Timeout(b.timeout).Eval(code)
	if err != nil {
		return nil, fmt.Errorf("script failed: %w", err)
	}
	return res.Value.Val(), nil
}

// PageContent captures the active tab's cleaned body HTML plus url and
// title, sized for transport rather than rendering.
func (b *Browser) PageContent() (map[string]any, error) {
	_, page, err := b.activePage()
	if err != nil {
		return nil, err
	}

	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("page info: %w", err)
	}

	body, err := page.Timeout(b.timeout).Element("body")
	if err != nil {
		return nil, fmt.Errorf("body not found: %w", err)
	}
	raw, err := body.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to get HTML: %w", err)
	}

	return map[string]any{
		"url":   info.URL,
		"title": info.Title,
		"html":  CleanHTML(raw, nil),
		"text":  ExtractText(raw),
	}, nil
}

// Screenshot captures the active tab as JPEG, downscaled to 1024px wide
// when larger, returned as a data URL like the capture APIs produce.
func (b *Browser) Screenshot() (map[string]any, error) {
	_, page, err := b.activePage()
	if err != nil {
		return nil, err
	}

	imgBytes, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(80),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}
	if img.Bounds().Dx() > 1024 {
		img = imaging.Resize(img, 1024, 0, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}

	return map[string]any{
		"dataUrl": "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		"width":   img.Bounds().Dx(),
		"height":  img.Bounds().Dy(),
	}, nil
}

// CookieString collects the browser's cookies for the given domain
// suffix into a single "name=value; ..." header string.
func (b *Browser) CookieString(domainSuffix string) (string, error) {
	cookies, err := b.browser.GetCookies()
	if err != nil {
		return "", fmt.Errorf("get cookies: %w", err)
	}

	var sb strings.Builder
	for _, c := range cookies {
		if domainSuffix != "" && !strings.HasSuffix(strings.TrimPrefix(c.Domain, "."), domainSuffix) {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(c.Name)
		sb.WriteString("=")
		sb.WriteString(c.Value)
	}
	return sb.String(), nil
}

func (b *Browser) Close() {
	if b.browser != nil {
		_ = b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
}
