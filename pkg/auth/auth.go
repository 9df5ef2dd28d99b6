// Package auth establishes a logged-in browser tab against the remote agent.
//
// It restores a previously persisted session when one exists, and otherwise
// runs the interactive identity-provider login once, persisting the resulting
// browser state for later runs. It performs no retries; the caller decides
// whether to retry a whole session.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/lansoai/agentbridge/pkg/browser"
	"github.com/lansoai/agentbridge/pkg/config"
	"github.com/lansoai/agentbridge/pkg/logging"
)

// Login flow steps, used for error attribution.
const (
	StepRestoreState   = "restore_state"
	StepIdentityEmail  = "identity_email"
	StepIdentitySecret = "identity_secret"
	StepVerification   = "verification"
	StepProviderLogin  = "provider_login"
	StepAppRedirect    = "app_redirect"
	StepPersistState   = "persist_state"
)

// Error is a login failure attributed to the step that failed.
type Error struct {
	Step string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth: step %s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func stepErr(step string, err error) *Error {
	return &Error{Step: step, Err: err}
}

// Manager runs the login flow against a tab.
type Manager struct {
	cfg *config.Config
	log *logging.Logger
}

// NewManager creates an authentication manager.
func NewManager(cfg *config.Config, log *logging.Logger) *Manager {
	return &Manager{cfg: cfg, log: log}
}

// EnsureLoggedIn leaves the tab on the agent's authenticated app route.
//
// Persisted state, when present and non-empty, is tried first; if restoring
// it does not produce a logged-in tab, the interactive flow runs and the
// fresh state overwrites whatever was on disk.
func (m *Manager) EnsureLoggedIn(ctx context.Context, page browser.Page) error {
	state, err := browser.LoadState(m.cfg.StatePath)
	if err != nil {
		// A corrupt state file should not strand us; fall through to the
		// interactive flow and overwrite it on success.
		m.log.Warnf("discarding unreadable state file %s: %v", m.cfg.StatePath, err)
		state = nil
	}

	if !state.Empty() {
		if err := m.restore(ctx, page, state); err == nil {
			m.log.Infof("session restored from %s", m.cfg.StatePath)
			return nil
		} else {
			m.log.Warnf("persisted session rejected, running interactive login: %v", err)
		}
	}

	if err := m.interactiveLogin(ctx, page); err != nil {
		return err
	}

	captured, err := page.CaptureState()
	if err != nil {
		return stepErr(StepPersistState, err)
	}
	if err := browser.SaveState(m.cfg.StatePath, captured); err != nil {
		return stepErr(StepPersistState, err)
	}
	m.log.Infof("interactive login complete, state persisted to %s", m.cfg.StatePath)
	return nil
}

// restore injects persisted cookies and verifies they still log us in by
// waiting for an authenticated-only element on the app route.
func (m *Manager) restore(ctx context.Context, page browser.Page, state *browser.State) error {
	if err := ctx.Err(); err != nil {
		return stepErr(StepRestoreState, err)
	}
	if err := page.AddCookies(state.Cookies); err != nil {
		return stepErr(StepRestoreState, err)
	}
	if err := page.Navigate(m.cfg.AppURL, 30*time.Second); err != nil {
		return stepErr(StepRestoreState, err)
	}
	if err := page.WaitForSelector(m.cfg.Selectors.Composer, 15*time.Second); err != nil {
		return stepErr(StepRestoreState, err)
	}
	return nil
}

// interactiveLogin walks the identity provider's flow and then the agent's
// "sign in via identity provider" control.
func (m *Manager) interactiveLogin(ctx context.Context, page browser.Page) error {
	sel := m.cfg.Selectors

	if err := ctx.Err(); err != nil {
		return stepErr(StepIdentityEmail, err)
	}

	m.log.Infof("running interactive identity-provider login")
	if err := page.Navigate(m.cfg.IdentityURL, 30*time.Second); err != nil {
		return stepErr(StepIdentityEmail, err)
	}
	if err := page.Fill(sel.EmailInput, m.cfg.AgentEmail); err != nil {
		return stepErr(StepIdentityEmail, err)
	}
	if err := page.Click(sel.NextButton, 10*time.Second); err != nil {
		return stepErr(StepIdentityEmail, err)
	}

	if err := page.WaitForSelector(sel.PasswordInput, 10*time.Second); err != nil {
		return stepErr(StepIdentitySecret, err)
	}
	if err := page.Fill(sel.PasswordInput, m.cfg.AgentPassword); err != nil {
		return stepErr(StepIdentitySecret, err)
	}
	if err := page.Click(sel.NextButton, 10*time.Second); err != nil {
		return stepErr(StepIdentitySecret, err)
	}

	// The secondary verification step only appears for some accounts.
	// Its absence is not an error.
	if page.Visible(sel.PhoneInput, 5*time.Second) {
		m.log.Infof("phone verification requested")
		if err := page.Fill(sel.PhoneInput, m.cfg.VerificationPhone); err != nil {
			return stepErr(StepVerification, err)
		}
		if err := page.Press("Enter"); err != nil {
			return stepErr(StepVerification, err)
		}
	}

	if err := page.Navigate(m.cfg.AgentLoginURL, 30*time.Second); err != nil {
		return stepErr(StepProviderLogin, err)
	}
	if page.Visible(sel.ProviderButton, 5*time.Second) {
		if err := page.Click(sel.ProviderButton, 10*time.Second); err != nil {
			return stepErr(StepProviderLogin, err)
		}
	}

	if err := page.WaitForURL(m.cfg.AppURLGlob, 15*time.Second); err != nil {
		return stepErr(StepAppRedirect, err)
	}
	if err := page.WaitForSelector(sel.Composer, 15*time.Second); err != nil {
		return stepErr(StepAppRedirect, err)
	}
	return nil
}
