// Package plugin discovers scene-control plugins and delivers command batches
// to them over stdin/stdout.
package plugin

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/ayusman/handscene/internal/model"
)

// Manifest describes a plugin's metadata and the commands it understands.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Executable  string `json:"executable"`
	// Commands lists the command types the plugin accepts. Empty means all.
	Commands     []model.CommandType `json:"commands"`
	ConfigSchema json.RawMessage     `json:"configSchema,omitempty"`
}

// Accepts reports whether the plugin handles commands of type t.
func (m Manifest) Accepts(t model.CommandType) bool {
	if len(m.Commands) == 0 {
		return true
	}
	for _, c := range m.Commands {
		if c == t {
			return true
		}
	}
	return false
}

// Validate checks that the executable stays inside the plugin directory and
// that every listed command type exists.
func (m Manifest) Validate() error {
	if m.Executable == "" {
		return fmt.Errorf("manifest has no executable")
	}
	if !filepath.IsLocal(m.Executable) {
		return fmt.Errorf("executable %q escapes the plugin directory", m.Executable)
	}
	for _, c := range m.Commands {
		if _, err := model.ParseCommandType(string(c)); err != nil {
			return err
		}
	}
	return nil
}

// Request is one tick's ordered command batch.
type Request struct {
	Commands []model.ControlCommand `json:"commands"`
	Config   json.RawMessage        `json:"config,omitempty"`
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
