package domain

import "time"

// User is the marketplace user directory row the conversation service reads.
// Profile editing lives in the account service; this side only resolves
// counterpart identities for conversation summaries.
type User struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	Username    string    `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName maps the model onto the users table
func (User) TableName() string { return "users" }
