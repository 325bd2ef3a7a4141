// Package main provides a keyboard plugin for macOS.
// It turns scene-control commands into keystrokes via AppleScript, so any
// viewer with keyboard navigation can be driven by gestures.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ControlCommand mirrors the command the host sends.
type ControlCommand struct {
	Type    string `json:"type"`
	Source  string `json:"source"`
	Payload struct {
		Delta  float64 `json:"delta,omitempty"`
		Target string  `json:"target,omitempty"`
	} `json:"payload"`
}

// Request represents the input from the plugin executor.
type Request struct {
	Commands []ControlCommand `json:"commands"`
	Config   json.RawMessage  `json:"config,omitempty"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Keystroke is a key with optional modifiers.
type Keystroke struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers"` // command, option, control, shift
}

// Keymap binds each command direction to a keystroke. Keys named in
// keyCodes are sent as key codes, anything else is typed.
type Keymap map[string]Keystroke

var defaultKeymap = Keymap{
	"pan-":    {Key: "left"},
	"pan+":    {Key: "right"},
	"rotate-": {Key: "left", Modifiers: []string{"shift"}},
	"rotate+": {Key: "right", Modifiers: []string{"shift"}},
	"zoom-":   {Key: "-", Modifiers: []string{"command"}},
	"zoom+":   {Key: "=", Modifiers: []string{"command"}},
	"select":  {Key: "return"},
}

// modifierMap maps user-friendly modifier names to AppleScript equivalents.
var modifierMap = map[string]string{
	"command": "command down",
	"cmd":     "command down",
	"option":  "option down",
	"alt":     "option down",
	"control": "control down",
	"ctrl":    "control down",
	"shift":   "shift down",
}

var keyCodes = map[string]int{
	"return": 36,
	"escape": 53,
	"left":   123,
	"right":  124,
	"down":   125,
	"up":     126,
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	keymap, err := loadKeymap(req.Config)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	// Resolve everything first so a bad batch sends nothing.
	scripts := make([]string, 0, len(req.Commands))
	for _, cmd := range req.Commands {
		ks, ok := keymap.lookup(cmd)
		if !ok {
			writeErrorResponse(fmt.Sprintf("unsupported command: %s", cmd.Type))
			return
		}
		if ks.Key == "" {
			continue
		}
		scripts = append(scripts, buildKeystrokeScript(ks.Key, ks.Modifiers))
	}

	for _, script := range scripts {
		if err := runAppleScript(script); err != nil {
			writeErrorResponse(fmt.Sprintf("keystroke failed: %v", err))
			return
		}
	}

	writeSuccessResponse()
}

// loadKeymap overlays the configured bindings on the defaults.
func loadKeymap(config json.RawMessage) (Keymap, error) {
	keymap := make(Keymap, len(defaultKeymap))
	for k, v := range defaultKeymap {
		keymap[k] = v
	}
	if len(config) == 0 || string(config) == "null" {
		return keymap, nil
	}

	var overrides Keymap
	if err := json.Unmarshal(config, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse keymap: %w", err)
	}
	for k, v := range overrides {
		keymap[k] = v
	}
	return keymap, nil
}

// lookup picks the binding for a command. Directional commands use the sign
// of their delta; a zero delta maps to an empty keystroke.
func (k Keymap) lookup(cmd ControlCommand) (Keystroke, bool) {
	switch cmd.Type {
	case "select":
		ks, ok := k["select"]
		return ks, ok
	case "pan", "rotate", "zoom":
		switch {
		case cmd.Payload.Delta < 0:
			ks, ok := k[cmd.Type+"-"]
			return ks, ok
		case cmd.Payload.Delta > 0:
			ks, ok := k[cmd.Type+"+"]
			return ks, ok
		}
		return Keystroke{}, true
	}
	return Keystroke{}, false
}

// buildKeystrokeScript generates an AppleScript for the given key and modifiers.
func buildKeystrokeScript(key string, modifiers []string) string {
	action := fmt.Sprintf(`keystroke "%s"`, key)
	if code, ok := keyCodes[strings.ToLower(key)]; ok {
		action = fmt.Sprintf("key code %d", code)
	}

	var appleModifiers []string
	for _, mod := range modifiers {
		if appleMod, ok := modifierMap[strings.ToLower(mod)]; ok {
			appleModifiers = append(appleModifiers, appleMod)
		}
	}

	if len(appleModifiers) == 0 {
		return fmt.Sprintf(`tell application "System Events" to %s`, action)
	}

	modifierList := strings.Join(appleModifiers, ", ")
	return fmt.Sprintf(`tell application "System Events" to %s using {%s}`, action, modifierList)
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse() {
	resp := Response{
		Success: true,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// runAppleScript executes an AppleScript command and returns any error.
func runAppleScript(script string) error {
	cmd := exec.Command("osascript", "-e", script)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
