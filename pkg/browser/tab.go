package browser

import (
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Page is the capability surface the rest of the bridge uses to automate one
// browser tab. *Tab is the Playwright-backed implementation; tests substitute
// fakes.
type Page interface {
	Navigate(url string, timeout time.Duration) error
	Fill(selector, value string) error
	Click(selector string, timeout time.Duration) error
	WaitForSelector(selector string, timeout time.Duration) error
	Press(key string) error

	// Visible reports whether an element matching selector becomes visible
	// within timeout. It never returns an error: an element that cannot be
	// found in time is simply not visible.
	Visible(selector string, timeout time.Duration) bool

	// QueryTexts returns the trimmed inner text of every element matching
	// selector, in DOM order. Elements that detach mid-read are skipped.
	QueryTexts(selector string) ([]string, error)

	Screenshot(fullPage bool) ([]byte, error)

	// PageText returns the page's visible text, flattened from its HTML.
	PageText() (string, error)

	URL() string
	WaitForURL(pattern string, timeout time.Duration) error

	AddCookies(cookies []Cookie) error
	CaptureState() (*State, error)

	// Alive reports whether the tab can still be driven.
	Alive() bool

	Close() error
}

// Tab wraps a Playwright page and its owning context.
type Tab struct {
	context playwright.BrowserContext
	page    playwright.Page
}

var _ Page = (*Tab)(nil)

// NewTab wraps an existing Playwright context/page pair.
func NewTab(context playwright.BrowserContext, page playwright.Page) *Tab {
	return &Tab{context: context, page: page}
}

// Navigate navigates the tab to the specified URL.
func (t *Tab) Navigate(url string, timeout time.Duration) error {
	opts := playwright.PageGotoOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(ms(timeout))
	}
	if _, err := t.page.Goto(url, opts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Fill fills an input element with the specified value.
func (t *Tab) Fill(selector, value string) error {
	if err := t.page.Fill(selector, value); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

// Click clicks an element matching the selector.
func (t *Tab) Click(selector string, timeout time.Duration) error {
	opts := playwright.PageClickOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(ms(timeout))
	}
	if err := t.page.Click(selector, opts); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

// WaitForSelector waits for an element matching selector to become visible.
func (t *Tab) WaitForSelector(selector string, timeout time.Duration) error {
	opts := playwright.PageWaitForSelectorOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(ms(timeout))
	}
	if _, err := t.page.WaitForSelector(selector, opts); err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	return nil
}

// Press presses a keyboard key (e.g. "Enter") on the focused element.
func (t *Tab) Press(key string) error {
	if err := t.page.Keyboard().Press(key); err != nil {
		return fmt.Errorf("key press failed: %w", err)
	}
	return nil
}

// Visible reports whether selector becomes visible within timeout.
func (t *Tab) Visible(selector string, timeout time.Duration) bool {
	state := playwright.WaitForSelectorStateVisible
	_, err := t.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   state,
		Timeout: playwright.Float(ms(timeout)),
	})
	return err == nil
}

// QueryTexts returns the trimmed inner text of every matching element.
func (t *Tab) QueryTexts(selector string) ([]string, error) {
	elements, err := t.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("selector query failed: %w", err)
	}

	texts := make([]string, 0, len(elements))
	for _, element := range elements {
		text, err := element.InnerText()
		if err != nil {
			// Node detached mid-read; skip it and keep going.
			continue
		}
		texts = append(texts, strings.TrimSpace(text))
	}
	return texts, nil
}

// Screenshot captures the page as PNG bytes.
func (t *Tab) Screenshot(fullPage bool) ([]byte, error) {
	data, err := t.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

// PageText flattens the page HTML into readable text.
func (t *Tab) PageText() (string, error) {
	html, err := t.page.Content()
	if err != nil {
		return "", fmt.Errorf("read page content: %w", err)
	}
	return ExtractText(html)
}

// URL returns the tab's current URL.
func (t *Tab) URL() string {
	return t.page.URL()
}

// WaitForURL waits until the tab's URL matches the glob pattern.
func (t *Tab) WaitForURL(pattern string, timeout time.Duration) error {
	opts := playwright.PageWaitForURLOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(ms(timeout))
	}
	if err := t.page.WaitForURL(pattern, opts); err != nil {
		return fmt.Errorf("wait for url failed: %w", err)
	}
	return nil
}

// AddCookies injects cookies into the tab's browser context.
func (t *Tab) AddCookies(cookies []Cookie) error {
	converted := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		converted = append(converted, c.toPlaywright())
	}
	if err := t.context.AddCookies(converted); err != nil {
		return fmt.Errorf("add cookies failed: %w", err)
	}
	return nil
}

// CaptureState snapshots the context's storage state (cookies).
func (t *Tab) CaptureState() (*State, error) {
	storage, err := t.context.StorageState()
	if err != nil {
		return nil, fmt.Errorf("capture storage state: %w", err)
	}

	state := &State{Cookies: make([]Cookie, 0, len(storage.Cookies))}
	for _, c := range storage.Cookies {
		state.Cookies = append(state.Cookies, cookieFromPlaywright(c))
	}
	return state, nil
}

// Alive reports whether the tab can still be driven. A closed page or a page
// whose context no longer answers counts as dead.
func (t *Tab) Alive() bool {
	if t.page.IsClosed() {
		return false
	}
	if _, err := t.page.Title(); err != nil {
		return false
	}
	return true
}

// Close closes the tab's page.
func (t *Tab) Close() error {
	if err := t.page.Close(); err != nil {
		return fmt.Errorf("close page: %w", err)
	}
	return nil
}

// ms converts a duration to Playwright's millisecond floats.
func ms(d time.Duration) float64 {
	return float64(d.Milliseconds())
}
