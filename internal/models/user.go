package models

import (
	"strings"
	"time"
)

type UserType string

const (
	UserTypeOwner    UserType = "owner"
	UserTypeSearcher UserType = "searcher"
	UserTypeRenter   UserType = "renter"
)

// Valid reports whether t is one of the known user types
func (t UserType) Valid() bool {
	switch t {
	case UserTypeOwner, UserTypeSearcher, UserTypeRenter:
		return true
	}
	return false
}

// User represents a user in the system
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"size:254;not null" json:"email"`
	FirstName string    `gorm:"size:150" json:"first_name"`
	LastName  string    `gorm:"size:150" json:"last_name"`
	UserType  UserType  `gorm:"size:20;not null;index" json:"user_type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// DisplayName returns the full name, falling back to the username
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}
