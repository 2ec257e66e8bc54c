package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/repository"
	"github.com/iliyamo/seat-booking/internal/utils"
)

// Users is a view of the store that satisfies the user repository methods.
// Its Create signature differs from the event inventory's, hence the
// separate type.
type Users struct{ s *Store }

// Users returns the user view of the store.
func (s *Store) Users() Users { return Users{s: s} }

// Create hashes the password and inserts the user.
func (u Users) Create(ctx context.Context, username, password, role string, cost int) (model.User, error) {
	username = repository.NormalizeUsername(username)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return model.User{}, err
	}
	var out model.User
	err = u.s.write(ctx, func(_ *tx) error {
		if _, taken := u.s.byName[username]; taken {
			return repository.ErrUsernameExists
		}
		now := u.s.now().UTC()
		usr := &model.User{
			ID:           uuid.NewString(),
			Username:     username,
			PasswordHash: hash,
			Role:         role,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		u.s.users[usr.ID] = usr
		u.s.byName[username] = usr.ID
		out = *usr
		return nil
	})
	return out, err
}

// GetByUsername fetches a user by normalized username.
func (u Users) GetByUsername(ctx context.Context, username string) (model.User, error) {
	var (
		out   model.User
		found bool
	)
	u.s.read(ctx, func() {
		if id, ok := u.s.byName[repository.NormalizeUsername(username)]; ok {
			out, found = *u.s.users[id], true
		}
	})
	if !found {
		return model.User{}, repository.ErrNotFound
	}
	return out, nil
}

// GetByID fetches a user by id.
func (u Users) GetByID(ctx context.Context, id string) (model.User, error) {
	var (
		out   model.User
		found bool
	)
	u.s.read(ctx, func() {
		if usr, ok := u.s.users[id]; ok {
			out, found = *usr, true
		}
	})
	if !found {
		return model.User{}, repository.ErrNotFound
	}
	return out, nil
}

// StoreRefresh records a refresh token hash.
func (s *Store) StoreRefresh(ctx context.Context, userID string, tokenHash string, exp time.Time) error {
	return s.write(ctx, func(_ *tx) error {
		s.tokens[tokenHash] = &tokenRow{userID: userID, expiresAt: exp.UTC()}
		return nil
	})
}

// ValidateRefresh returns the owner of a live token or
// repository.ErrNotFound.
func (s *Store) ValidateRefresh(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	s.read(ctx, func() {
		row, ok := s.tokens[tokenHash]
		if ok && !row.revoked && !s.now().UTC().After(row.expiresAt) {
			userID = row.userID
		}
	})
	if userID == "" {
		return "", repository.ErrNotFound
	}
	return userID, nil
}

// RevokeByHash marks one token as revoked.
func (s *Store) RevokeByHash(ctx context.Context, tokenHash string) error {
	return s.write(ctx, func(_ *tx) error {
		if row, ok := s.tokens[tokenHash]; ok {
			row.revoked = true
		}
		return nil
	})
}

// PurgeExpired drops tokens that expired more than grace ago and every
// revoked token.  Revocation time is not tracked here.
func (s *Store) PurgeExpired(ctx context.Context, grace time.Duration) (int64, error) {
	var n int64
	err := s.write(ctx, func(_ *tx) error {
		cutoff := s.now().UTC().Add(-grace)
		for hash, row := range s.tokens {
			if row.revoked || !row.expiresAt.After(cutoff) {
				delete(s.tokens, hash)
				n++
			}
		}
		return nil
	})
	return n, err
}

// RevokeAllForUser revokes every token of userID.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string) error {
	return s.write(ctx, func(_ *tx) error {
		for _, row := range s.tokens {
			if row.userID == userID {
				row.revoked = true
			}
		}
		return nil
	})
}
