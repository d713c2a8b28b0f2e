package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	InputDir     string
	WorkspaceDir string
	OutputDir    string

	DataDir string
	DBPath  string

	LogLevel  string
	ClaudeBin string

	// Credentials routed through to the session, unmodified.
	AuthToken string
	BaseURL   string

	// Target ownership for the output tree. Nil means "leave alone".
	HostUID *int
	HostGID *int
}

func New() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("ANVIL_DATA_DIR", filepath.Join(homeDir, ".anvil"))

	c := &Config{
		InputDir:     getEnv("ANVIL_INPUT_DIR", "/anvil/input"),
		WorkspaceDir: getEnv("ANVIL_WORKSPACE_DIR", "/workspace"),
		OutputDir:    getEnv("ANVIL_OUTPUT_DIR", "/anvil/output"),
		DataDir:      dataDir,
		DBPath:       filepath.Join(dataDir, "anvil.db"),
		LogLevel:     getEnv("ANVIL_LOG_LEVEL", "progress"),
		ClaudeBin:    getEnv("ANVIL_CLAUDE_BIN", "claude"),
		AuthToken:    firstEnv("ANTHROPIC_AUTH_TOKEN", "ANTHROPIC_API_KEY"),
		BaseURL:      firstEnv("ANTHROPIC_BASE_URL", "ANTHROPIC_API_URL"),
	}

	var err2 error
	c.HostUID, err2 = optionalID("HOST_UID")
	if err2 != nil {
		return nil, err2
	}
	c.HostGID, err2 = optionalID("HOST_GID")
	if err2 != nil {
		return nil, err2
	}

	return c, nil
}

func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// SpecPath is the task specification document inside the input directory.
func (c *Config) SpecPath() string {
	return filepath.Join(c.InputDir, "spec.yaml")
}

// SystemPromptPath and UserPromptPath are the two compiled instruction files
// rendered by the host-side prompt compiler.
func (c *Config) SystemPromptPath() string {
	return filepath.Join(c.InputDir, "prompts", "system.md")
}

func (c *Config) UserPromptPath() string {
	return filepath.Join(c.InputDir, "prompts", "user.md")
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

// optionalID reads an owner/group id from the environment. Unset or empty
// means "not configured"; a set-but-garbled value is a real error rather
// than a silent no-op.
func optionalID(key string) (*int, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return nil, nil
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return &id, nil
}
