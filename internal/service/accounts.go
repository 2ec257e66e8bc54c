package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/repository"
)

// UserStore is the subset of the user repository needed for seeding.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (model.User, error)
	Create(ctx context.Context, username, password, role string, cost int) (model.User, error)
}

// EnsureAdmin creates an ADMIN account named username unless one with that
// name already exists.  An existing account keeps its password and role.
func EnsureAdmin(ctx context.Context, users UserStore, username, password string, cost int, log *zap.Logger) error {
	if username == "" || password == "" {
		return nil
	}
	_, err := users.GetByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("look up admin: %w", err)
	}
	u, err := users.Create(ctx, username, password, model.RoleAdmin, cost)
	if errors.Is(err, repository.ErrUsernameExists) {
		return nil // created concurrently by another instance
	}
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	log.Info("admin account created", zap.String("user_id", u.ID), zap.String("username", u.Username))
	return nil
}

// TokenPurger deletes dead refresh tokens.
type TokenPurger interface {
	PurgeExpired(ctx context.Context, grace time.Duration) (int64, error)
}

// PurgeTokens runs tokens.PurgeExpired every interval until ctx is done.
// Failures are logged and retried on the next tick.
func PurgeTokens(ctx context.Context, tokens TokenPurger, every, grace time.Duration, log *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := tokens.PurgeExpired(ctx, grace)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("refresh token purge failed", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				log.Info("refresh tokens purged", zap.Int64("count", n))
			}
		}
	}
}
