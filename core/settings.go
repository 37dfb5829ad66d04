package core

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings is the persisted, user-facing configuration record: a flat
// key-value document loaded at startup, merged over hardcoded defaults,
// and saved back on change.
type Settings struct {
	Provider    ProviderID `yaml:"provider"`
	PromptModel string     `yaml:"prompt_model"`
	ImageModel  string     `yaml:"image_model"`

	APIKeys map[ProviderID]string `yaml:"api_keys"`

	DefaultStyle      Style `yaml:"default_style"`
	DefaultSize       Size  `yaml:"default_size"`
	DefaultPanelCount int   `yaml:"default_panel_count"`

	AttachmentFolder string `yaml:"attachment_folder"`
	AutoRetryCount   int    `yaml:"auto_retry_count"`
	Language         string `yaml:"language"`

	ShowPreview  bool `yaml:"show_preview"`
	ShowProgress bool `yaml:"show_progress"`
}

// DefaultSettings returns the hardcoded defaults that persisted settings
// are merged over.
func DefaultSettings() *Settings {
	return &Settings{
		Provider:          ProviderOpenAI,
		PromptModel:       "",
		ImageModel:        "",
		APIKeys:           map[ProviderID]string{},
		DefaultStyle:      StyleInfographic,
		DefaultSize:       Size1K,
		DefaultPanelCount: 4,
		AttachmentFolder:  "attachments",
		AutoRetryCount:    2,
		Language:          "en",
		ShowPreview:       true,
		ShowProgress:      true,
	}
}

// LoadSettings reads the settings record from path and merges it over the
// defaults. A missing file yields plain defaults. API keys set in the
// environment override persisted keys.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// First run; defaults plus env keys.
	case err != nil:
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
		}
	}

	if s.APIKeys == nil {
		s.APIKeys = map[ProviderID]string{}
	}
	applyEnvKeys(s.APIKeys)

	return s, nil
}

// Save writes the settings record back to path, creating parent
// directories as needed.
func (s *Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write settings file %s: %w", path, err)
	}
	return nil
}

// applyEnvKeys overlays API keys from the environment onto the key map.
func applyEnvKeys(keys map[ProviderID]string) {
	envNames := map[ProviderID][]string{
		ProviderOpenAI:    {"OPENAI_API_KEY"},
		ProviderGoogle:    {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
		ProviderAnthropic: {"ANTHROPIC_API_KEY"},
		ProviderXAI:       {"XAI_API_KEY"},
	}
	for id, names := range envNames {
		for _, name := range names {
			if v := os.Getenv(name); v != "" {
				keys[id] = v
				break
			}
		}
	}
}
