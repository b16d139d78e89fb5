package domain

import "time"

// User is a first-party account created on first successful social login.
// Provider and SocialID together identify the external account and never
// change after creation; nickname and profile image are refreshed from the
// provider on every login.
type User struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Provider        string    `gorm:"size:32;not null;uniqueIndex:idx_users_provider_social_id,priority:1" json:"provider"`
	SocialID        string    `gorm:"size:128;not null;uniqueIndex:idx_users_provider_social_id,priority:2" json:"social_id"`
	Nickname        string    `gorm:"size:128;not null" json:"nickname"`
	ProfileImageURL string    `gorm:"size:1024" json:"profile_image_url"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
