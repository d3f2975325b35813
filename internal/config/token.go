package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// TokenEnvVar overrides the stored GitHub token when set.
const TokenEnvVar = "QOL_TRAY_GITHUB_TOKEN"

// GitHubToken resolves the GitHub API token used by the plugin store.
// Priority: environment variable, .env in the config dir, token file.
// Returns "" when no token is configured (the store then runs unauthenticated).
func GitHubToken() string {
	if tok := strings.TrimSpace(os.Getenv(TokenEnvVar)); tok != "" {
		return tok
	}

	if dir, err := Dir(); err == nil {
		if err := godotenv.Load(filepath.Join(dir, ".env")); err == nil {
			if tok := strings.TrimSpace(os.Getenv(TokenEnvVar)); tok != "" {
				return tok
			}
		}
	}

	path, err := TokenFile()
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// HasStoredGitHubToken reports whether a token file exists.
func HasStoredGitHubToken() bool {
	path, err := TokenFile()
	if err != nil {
		return false
	}
	return FileExists(path)
}

// SaveGitHubToken stores the token with user-only permissions.
func SaveGitHubToken(token string) error {
	if err := EnsureDir(); err != nil {
		return err
	}
	path, err := TokenFile()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strings.TrimSpace(token)+"\n"), 0600)
}

// DeleteGitHubToken removes the stored token file if present.
func DeleteGitHubToken() error {
	path, err := TokenFile()
	if err != nil {
		return err
	}
	if !FileExists(path) {
		return nil
	}
	return os.Remove(path)
}
