package gormstore

import (
	"time"

	"github.com/praneshk/authkit"
)

// UserModel is the GORM model for users.
type UserModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Username     string    `gorm:"size:255;uniqueIndex;not null"`
	Email        string    `gorm:"size:320;uniqueIndex;not null"`
	PasswordHash string    `gorm:"size:255;not null"`
	IsVerified   bool      `gorm:"default:false"`
	IsAdmin      bool      `gorm:"default:false"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *authkit.User {
	return &authkit.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Verified:     m.IsVerified,
		Admin:        m.IsAdmin,
		CreatedAt:    m.CreatedAt,
	}
}

// OAuthAccountModel is the GORM model for provider links.
type OAuthAccountModel struct {
	Provider   string    `gorm:"primaryKey;size:32"`
	ProviderID string    `gorm:"primaryKey;size:255"`
	UserID     int64     `gorm:"index;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (OAuthAccountModel) TableName() string {
	return "oauth_accounts"
}

func (m *OAuthAccountModel) ToLink() *authkit.OAuthLink {
	return &authkit.OAuthLink{
		Provider:   m.Provider,
		ProviderID: m.ProviderID,
		UserID:     m.UserID,
		CreatedAt:  m.CreatedAt,
	}
}
