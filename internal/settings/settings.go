// Package settings mirrors run credentials into the agent CLI's settings
// file so the spawned session authenticates the same way the orchestrator
// was told to.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// settingsRelPath is where the agent CLI reads its configuration, relative
// to the home directory.
const settingsRelPath = ".claude/settings.json"

// Sync merges the run's credentials into the env section of the agent
// settings file. The file is only updated when it already exists: a missing
// file means the CLI was never configured on this host and creating one
// from scratch could shadow whatever auth mechanism it actually uses.
// Unknown keys in the file are preserved untouched. Every failure is
// reported to the caller but none should abort a run.
func Sync(authToken, baseURL string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("settings: resolve home: %w", err)
	}
	return syncFile(filepath.Join(home, settingsRelPath), authToken, baseURL)
}

func syncFile(path, authToken, baseURL string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("settings: read %s: %w", path, err)
	}

	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("settings: parse %s: %w", path, err)
	}

	env, ok := settings["env"].(map[string]any)
	if !ok {
		env = map[string]any{}
	}

	if authToken != "" {
		env["ANTHROPIC_AUTH_TOKEN"] = authToken
		env["ANTHROPIC_API_KEY"] = authToken
	}
	if baseURL != "" {
		env["ANTHROPIC_BASE_URL"] = baseURL
		env["ANTHROPIC_API_URL"] = baseURL
		env["CLAUDE_CODE_API_URL"] = baseURL
	}
	env["IS_SANDBOX"] = "1"
	settings["env"] = env

	out, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if err := os.WriteFile(path, append(out, '\n'), 0600); err != nil {
		return fmt.Errorf("settings: write %s: %w", path, err)
	}
	return nil
}
