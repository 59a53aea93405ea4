package config

import (
	"context"
	"log/slog"

	warden "github.com/eugener/warden/internal"
	"github.com/eugener/warden/internal/auth/method/native"
	"github.com/eugener/warden/internal/storage"
)

// Bootstrap seeds native users from the config file on first run. Existing
// users (matched by name) are left untouched -- bootstrap never overwrites
// a password once a user exists, matching the teacher's seed-if-absent
// idiom for providers/routes/keys.
func Bootstrap(ctx context.Context, cfg *Config, users storage.UserStore) error {
	for _, u := range cfg.Users {
		if u.Name == "" || u.Password == "" {
			continue
		}
		existing, _ := users.GetByName(ctx, u.Name)
		if existing != nil {
			continue
		}

		hash, err := native.HashPassword(u.Password)
		if err != nil {
			return err
		}
		user := &warden.User{
			Name:         u.Name,
			PasswordHash: hash,
		}
		if err := users.CreateUser(ctx, user); err != nil {
			return err
		}
		slog.Info("bootstrapped user", "name", u.Name)
	}
	return nil
}
