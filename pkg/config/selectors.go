package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Selectors holds the CSS selectors used to drive the remote agent's UI and
// the identity provider's login flow. Every field has a working default for
// the current UI; a YAML file can override any subset when the UI changes.
type Selectors struct {
	// Composer is the message input control, present only when logged in.
	Composer string `yaml:"composer"`

	// Messages matches every message-like node in the conversation.
	Messages string `yaml:"messages"`

	// AnswerContainer is the node holding the final rendered answer, used by
	// the visual strategy's DOM sniff.
	AnswerContainer string `yaml:"answer_container"`

	// Spinner is the "agent is working" indicator.
	Spinner string `yaml:"spinner"`

	// Identity provider login flow.
	EmailInput    string `yaml:"email_input"`
	PasswordInput string `yaml:"password_input"`
	NextButton    string `yaml:"next_button"`
	PhoneInput    string `yaml:"phone_input"`

	// ProviderButton triggers "sign in via identity provider" on the agent's
	// login page.
	ProviderButton string `yaml:"provider_button"`
}

// DefaultSelectors returns the selectors for the agent UI as currently shipped.
func DefaultSelectors() Selectors {
	return Selectors{
		Composer:        "textarea",
		Messages:        "div[data-message-id], div.prose",
		AnswerContainer: "div.prose:last-of-type",
		Spinner:         "[data-working], .animate-spin",
		EmailInput:      `input[type="email"]`,
		PasswordInput:   `input[type="password"]`,
		NextButton:      `button:has-text("Next")`,
		PhoneInput:      `input[type="tel"]`,
		ProviderButton:  "text=Sign up with Google",
	}
}

// LoadSelectors loads selector overrides from the YAML file at path, merged
// over the defaults. An empty path returns the defaults unchanged.
func LoadSelectors(path string) (Selectors, error) {
	selectors := DefaultSelectors()
	if path == "" {
		return selectors, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return selectors, fmt.Errorf("read selectors file: %w", err)
	}
	if err := yaml.Unmarshal(data, &selectors); err != nil {
		return selectors, fmt.Errorf("parse selectors file: %w", err)
	}
	return selectors, nil
}
