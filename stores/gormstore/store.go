// Package gormstore implements the authkit stores on GORM, for applications
// already carrying a *gorm.DB. The sqlx-based sqlstore is the primary
// backend; this one mirrors it contract for contract.
package gormstore

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/praneshk/authkit"
)

// Store implements authkit.UserStore and authkit.OAuthStore using GORM.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store { return &Store{db: db} }

// AutoMigrate runs database migrations for the authkit tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&OAuthAccountModel{},
	)
}

func (s *Store) GetByID(ctx context.Context, id int64) (*authkit.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return model.ToUser(), nil
}

func (s *Store) GetByUsername(ctx context.Context, username string) (*authkit.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "username = ?", username).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return model.ToUser(), nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*authkit.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "email = ?", email).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return model.ToUser(), nil
}

func (s *Store) UsernameTaken(ctx context.Context, username string) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&UserModel{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return &authkit.ConflictError{Field: "username", Value: username}
	}
	return nil
}

func (s *Store) EmailTaken(ctx context.Context, email string) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&UserModel{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return &authkit.ConflictError{Field: "email", Value: email}
	}
	return nil
}

func (s *Store) Create(ctx context.Context, nu authkit.NewUser) (*authkit.User, error) {
	if err := authkit.ValidateEmail(nu.Email); err != nil {
		return nil, err
	}
	if err := s.EmailTaken(ctx, nu.Email); err != nil {
		return nil, err
	}
	if err := s.UsernameTaken(ctx, nu.Username); err != nil {
		return nil, err
	}

	model := &UserModel{
		Username:     nu.Username,
		Email:        nu.Email,
		PasswordHash: nu.PasswordHash,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, mapDuplicate(err, nu)
	}
	return model.ToUser(), nil
}

func (s *Store) MarkVerified(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", id).Update("is_verified", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return authkit.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]*authkit.User, error) {
	return s.selectUsers(ctx, s.db.WithContext(ctx))
}

func (s *Store) ListVerified(ctx context.Context) ([]*authkit.User, error) {
	return s.selectUsers(ctx, s.db.WithContext(ctx).Where("is_verified = ?", true))
}

func (s *Store) ListAdmins(ctx context.Context) ([]*authkit.User, error) {
	return s.selectUsers(ctx, s.db.WithContext(ctx).Where("is_admin = ?", true))
}

func (s *Store) selectUsers(ctx context.Context, tx *gorm.DB) ([]*authkit.User, error) {
	var models []UserModel
	if err := tx.Order("id").Find(&models).Error; err != nil {
		return nil, err
	}
	users := make([]*authkit.User, 0, len(models))
	for i := range models {
		users = append(users, models[i].ToUser())
	}
	return users, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&UserModel{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&UserModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return authkit.ErrNotFound
	}
	return nil
}

func (s *Store) GetLink(ctx context.Context, provider, providerID string) (*authkit.OAuthLink, error) {
	var model OAuthAccountModel
	err := s.db.WithContext(ctx).
		First(&model, "provider = ? AND provider_id = ?", provider, providerID).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return model.ToLink(), nil
}

func (s *Store) CreateLink(ctx context.Context, link *authkit.OAuthLink) error {
	model := &OAuthAccountModel{
		Provider:   link.Provider,
		ProviderID: link.ProviderID,
		UserID:     link.UserID,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicate(err) {
			return &authkit.ConflictError{Field: "provider_id", Value: link.ProviderID}
		}
		return err
	}
	return nil
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return authkit.ErrNotFound
	}
	return err
}

func mapDuplicate(err error, nu authkit.NewUser) error {
	if !isDuplicate(err) {
		return err
	}
	if strings.Contains(err.Error(), "email") {
		return &authkit.ConflictError{Field: "email", Value: nu.Email}
	}
	return &authkit.ConflictError{Field: "username", Value: nu.Username}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// Dialects without error translation fall through to string matching.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate")
}
