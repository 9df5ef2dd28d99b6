package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/playwright-community/playwright-go"
)

// Cookie is one persisted browser cookie. The JSON shape matches Playwright's
// storage state export, so state files written by earlier tooling load
// unchanged.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// State is a serializable snapshot of authenticated browser state, written
// after a successful interactive login and restored on later runs.
type State struct {
	Cookies []Cookie `json:"cookies"`
}

// Empty reports whether the state carries nothing worth restoring.
func (s *State) Empty() bool {
	return s == nil || len(s.Cookies) == 0
}

// LoadState reads a persisted state file. A missing file is not an error; it
// returns (nil, nil) so callers fall through to interactive login.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return &state, nil
}

// SaveState writes the state file atomically: the snapshot goes to a temp
// file in the same directory and is renamed into place, so readers never see
// a partial write.
func SaveState(path string, state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func (c Cookie) toPlaywright() playwright.OptionalCookie {
	cookie := playwright.OptionalCookie{
		Name:  c.Name,
		Value: c.Value,
	}
	if c.Domain != "" {
		cookie.Domain = playwright.String(c.Domain)
	}
	if c.Path != "" {
		cookie.Path = playwright.String(c.Path)
	}
	if c.Expires != 0 {
		cookie.Expires = playwright.Float(c.Expires)
	}
	if c.HTTPOnly {
		cookie.HttpOnly = playwright.Bool(true)
	}
	if c.Secure {
		cookie.Secure = playwright.Bool(true)
	}
	if same := sameSiteAttribute(c.SameSite); same != nil {
		cookie.SameSite = same
	}
	return cookie
}

func cookieFromPlaywright(c playwright.Cookie) Cookie {
	cookie := Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  c.Expires,
		HTTPOnly: c.HttpOnly,
		Secure:   c.Secure,
	}
	if c.SameSite != nil {
		cookie.SameSite = string(*c.SameSite)
	}
	return cookie
}

func sameSiteAttribute(value string) *playwright.SameSiteAttribute {
	switch value {
	case string(*playwright.SameSiteAttributeStrict):
		return playwright.SameSiteAttributeStrict
	case string(*playwright.SameSiteAttributeLax):
		return playwright.SameSiteAttributeLax
	case string(*playwright.SameSiteAttributeNone):
		return playwright.SameSiteAttributeNone
	default:
		return nil
	}
}
