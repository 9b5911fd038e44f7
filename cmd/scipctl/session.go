package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const sessionFile = ".scip_auth"

// session is the cached login, stored next to the user's other dotfiles.
type session struct {
	API       string    `json:"api"`
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

var errNotLoggedIn = errors.New("not logged in, run `scipctl login` first")

func sessionPath() (string, error) {
	if p := os.Getenv("SCIP_AUTH_FILE"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, sessionFile), nil
}

func saveSession(path string, s session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func loadSession(path string, now time.Time) (session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return session{}, errNotLoggedIn
	}
	if err != nil {
		return session{}, fmt.Errorf("failed to read session: %w", err)
	}

	var s session
	if err := json.Unmarshal(data, &s); err != nil {
		return session{}, fmt.Errorf("failed to parse session %s: %w", path, err)
	}
	if s.Token == "" {
		return session{}, errNotLoggedIn
	}
	if !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt) {
		return session{}, fmt.Errorf("session expired at %s, run `scipctl login` again", s.ExpiresAt.Format(time.RFC3339))
	}
	return s, nil
}

func clearSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
