package models

import "time"

// Student is a directory entry keyed by its immutable register number.
type Student struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	RegisterNumber string    `db:"register_number" json:"register_number"`
	ClassYear      string    `db:"class_year" json:"class_year"`
	Department     string    `db:"department" json:"department"`
	AadharNumber   *string   `db:"aadhar_number" json:"aadhar_number,omitempty"`
	PhoneNumber    *string   `db:"phone_number" json:"phone_number,omitempty"`
	Email          *string   `db:"email" json:"email,omitempty"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter scopes directory queries.
type StudentFilter struct {
	Search    string
	Year      string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
