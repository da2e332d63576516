package models

import "time"

// User is an API account belonging to a fleet company.
type User struct {
	ID           string    `db:"user_id" json:"user_id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CompanyID    string    `db:"company_id" json:"company_id"`
	CompanyName  string    `db:"company_name" json:"company_name"`
	IsAdmin      bool      `db:"is_admin" json:"is_admin"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
