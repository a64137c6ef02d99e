package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for the local auth provider.
type LoginRequest struct {
	EPF       string `json:"epf" validate:"required"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresIn   int64     `json:"expiresIn"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issuedAt"`
}

// VerifyTokenRequest carries an identity token to be exchanged for the user's profile.
type VerifyTokenRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// CreateUserRequest is the admin payload for provisioning an account.
type CreateUserRequest struct {
	EPF        string   `json:"epf" validate:"required,alphanum,max=32"`
	Name       string   `json:"name" validate:"required"`
	Email      string   `json:"email" validate:"required,email"`
	Password   string   `json:"password" validate:"omitempty,min=6"`
	Role       UserRole `json:"role" validate:"required,oneof=user admin hod dean vc"`
	Department string   `json:"department"`
}

// DeleteUserRequest removes an account irreversibly.
type DeleteUserRequest struct {
	EPF string `json:"epf" validate:"required"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	EPF        string   `json:"epf"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Role       UserRole `json:"role"`
	Department string   `json:"department"`
}

// NewUserInfo projects a user onto its public profile.
func NewUserInfo(u *User) UserInfo {
	return UserInfo{EPF: u.EPF, Name: u.Name, Email: u.Email, Role: u.Role, Department: u.Department}
}

// JWTClaims represents the verified identity attached to every request.
type JWTClaims struct {
	UserID string   `json:"epf"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	jwt.RegisteredClaims
}
