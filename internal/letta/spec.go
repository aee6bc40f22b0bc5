package letta

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LLMConfig selects the model an agent runs on.
type LLMConfig struct {
	Model             string `json:"model" yaml:"model"`
	ModelEndpointType string `json:"model_endpoint_type" yaml:"model_endpoint_type"`
	ContextWindow     int    `json:"context_window,omitempty" yaml:"context_window,omitempty"`
}

// AgentSpec is the payload for creating an agent.
type AgentSpec struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	System      string    `json:"system,omitempty" yaml:"system,omitempty"`
	LLMConfig   LLMConfig `json:"llm_config" yaml:"llm_config"`
}

// DefaultSpec returns a Gemini-backed general assistant for model.
func DefaultSpec(model string) AgentSpec {
	return AgentSpec{
		Name:        "Gemini Assistant",
		Description: "A helpful, general-purpose AI assistant powered by Google Gemini",
		System: "You are Gemini Assistant, a helpful AI assistant powered by Google Gemini.\n" +
			"Provide helpful, accurate and concise responses.\n" +
			"If you are not sure about an answer, acknowledge the limits of your knowledge.",
		LLMConfig: LLMConfig{
			Model:             model,
			ModelEndpointType: "google_ai",
			ContextWindow:     32768,
		},
	}
}

// Validate checks the fields the server requires.
func (s AgentSpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("letta: agent name is required")
	}
	if strings.TrimSpace(s.LLMConfig.Model) == "" {
		return errors.New("letta: llm_config.model is required")
	}
	return nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// WriteSpecFile writes s to path as JSON when the extension is .json and
// as YAML otherwise.
func WriteSpecFile(path string, s AgentSpec) error {
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(s, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(s)
	}
	if err != nil {
		return fmt.Errorf("letta: encode spec: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("letta: write spec: %w", err)
	}
	return nil
}

// ReadSpecFile reads an agent spec written by WriteSpecFile.
func ReadSpecFile(path string) (AgentSpec, error) {
	var s AgentSpec
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("letta: read spec: %w", err)
	}
	if isJSON(path) {
		err = json.Unmarshal(data, &s)
	} else {
		err = yaml.Unmarshal(data, &s)
	}
	if err != nil {
		return s, fmt.Errorf("letta: decode spec %s: %w", path, err)
	}
	return s, s.Validate()
}
