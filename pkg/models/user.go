package models

import "time"

// User is the directory projection of a user. The authentication service owns
// the credentials; this record is materialized from user events and from direct
// directory edits.
type User struct {
	ID         string     `json:"id" db:"id"`
	Email      string     `json:"email" db:"email"`
	FullName   string     `json:"full_name" db:"full_name"`
	Role       string     `json:"role" db:"role"`
	Status     string     `json:"status" db:"status"`
	Department string     `json:"department,omitempty" db:"department"`
	IsDeleted  bool       `json:"is_deleted" db:"is_deleted"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// UpdateUserRequest is the request body for editing a directory entry.
type UpdateUserRequest struct {
	Email      string `json:"email,omitempty" binding:"omitempty,email" example:"jane@konecta.io"`
	FullName   string `json:"full_name,omitempty" example:"Jane Doe"`
	Role       string `json:"role,omitempty" example:"Manager"`
	Status     string `json:"status,omitempty" example:"Active"`
	Department string `json:"department,omitempty" example:"Engineering"`
}

// UserSummary aggregates directory counts for the reporting endpoint.
type UserSummary struct {
	TotalUsers   int            `json:"total_users"`
	ActiveUsers  int            `json:"active_users"`
	DeletedUsers int            `json:"deleted_users"`
	ByRole       map[string]int `json:"by_role"`
	ByStatus     map[string]int `json:"by_status"`
}

// PagedUsers is a page of directory entries plus paging metadata.
type PagedUsers struct {
	Items      []User `json:"items"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalItems int    `json:"total_items"`
}
