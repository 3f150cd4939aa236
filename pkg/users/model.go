package users

import "rentmarket/pkg/models"

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
	Phone    string
	Address  string
}

type LoginResult struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

type Signature struct {
	Signature string `json:"signature"`
}
