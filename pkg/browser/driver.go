// Package browser drives a single remote browser tab over the Chrome
// DevTools Protocol using Playwright. It is the only package that touches
// Playwright directly; everything above it works against the Page interface.
package browser

import (
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// Conn is an open connection to a remote browser process.
type Conn interface {
	// DefaultTab returns the browser's existing context and page when the
	// remote session already has one, creating them otherwise.
	DefaultTab() (Page, error)

	// Close disconnects from the remote browser.
	Close() error
}

// Driver owns the Playwright process and opens CDP connections to remote
// browser sessions.
type Driver struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	started bool
}

// NewDriver creates an unstarted driver. Call Start before Connect.
func NewDriver() *Driver {
	return &Driver{}
}

// Start installs (if needed) and launches the Playwright driver process.
// Safe to call more than once.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return nil
	}

	// Discard driver output so it does not interleave with our own logs.
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	d.pw = pw
	d.started = true
	return nil
}

// Connect attaches to a remote browser over CDP.
func (d *Driver) Connect(connectURL string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil, fmt.Errorf("driver not started")
	}

	browser, err := d.pw.Chromium.ConnectOverCDP(connectURL)
	if err != nil {
		return nil, fmt.Errorf("connect over CDP: %w", err)
	}
	return &conn{browser: browser}, nil
}

// Stop shuts down the Playwright process.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil
	}
	d.started = false
	if err := d.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

type conn struct {
	browser playwright.Browser
}

func (c *conn) DefaultTab() (Page, error) {
	var context playwright.BrowserContext
	if contexts := c.browser.Contexts(); len(contexts) > 0 {
		context = contexts[0]
	} else {
		created, err := c.browser.NewContext()
		if err != nil {
			return nil, fmt.Errorf("create context: %w", err)
		}
		context = created
	}

	var page playwright.Page
	if pages := context.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		created, err := context.NewPage()
		if err != nil {
			return nil, fmt.Errorf("create page: %w", err)
		}
		page = created
	}

	return &Tab{context: context, page: page}, nil
}

func (c *conn) Close() error {
	if err := c.browser.Close(); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}
