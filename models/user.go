package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrEmailTaken = errors.New("email already registered")

type User struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Email        string    `gorm:"type:varchar(320);uniqueIndex" json:"email"`
	FullName     string    `gorm:"type:varchar(200)" json:"fullName,omitempty"`
	PasswordHash string    `gorm:"type:varchar(200)" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

// PublicUser is the caller-visible identity, without the credential.
type PublicUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
}

func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, FullName: u.FullName}
}

// CreateUser registers a new user. Emails are stored lowercase so lookups
// are case-insensitive.
func CreateUser(db *gorm.DB, email, passwordHash, fullName string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var n int64
	if err := db.Model(&User{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrEmailTaken
	}
	u := &User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: passwordHash,
	}
	if err := db.Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

func GetUserByEmail(db *gorm.DB, email string) (*User, error) {
	var u User
	err := db.First(&u, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func GetUserByID(db *gorm.DB, id string) (*User, error) {
	var u User
	err := db.First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
