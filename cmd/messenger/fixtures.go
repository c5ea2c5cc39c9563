package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	domainuser "learnhub/internal/domain/user"
)

type userFixture struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Role        string `json:"role"`
}

// loadUserFixtures seeds the profile directory for local runs.
func (a *application) loadUserFixtures(ctx context.Context, path string, logger *slog.Logger) error {
	if path == "" {
		path = defaultUserFixturesPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("user fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	if len(data) == 0 {
		logger.Warn("user fixtures file empty", "path", path)
		return nil
	}
	var fixtures []userFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}
	imported := 0
	for _, fx := range fixtures {
		id := strings.TrimSpace(fx.ID)
		if id == "" {
			logger.Error("fixture invalid", "error", domainuser.ErrIDRequired)
			continue
		}
		profile := domainuser.Profile{
			ID:          domainuser.ID(id),
			DisplayName: strings.TrimSpace(fx.DisplayName),
			AvatarURL:   fx.AvatarURL,
			Role:        domainuser.Role(fx.Role),
		}
		if err := a.profiles.Put(ctx, profile); err != nil {
			logger.Error("cannot store fixture profile", "user_id", id, "error", err)
			continue
		}
		imported++
	}
	logger.Info("user fixtures imported", "count", imported, "path", path)
	return nil
}

func defaultUserFixturesPath() string {
	candidates := []string{
		filepath.Join("data", "users.json"),
		filepath.Join("..", "..", "data", "users.json"),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return candidates[0]
}
