package domain

import "time"

// Session records the single currently valid refresh token for a
// (user, device) pair. The token itself is stored as a peppered HMAC hash;
// rotation replaces TokenHash in place so the row identity survives across
// refreshes. Expiry is enforced by JWT verification, not by the store.
type Session struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	TokenHash string    `gorm:"size:128;uniqueIndex;not null" json:"-"`
	TokenID   string    `gorm:"size:64;index" json:"-"`
	UserAgent string    `gorm:"size:512" json:"user_agent"`
	IP        string    `gorm:"size:64" json:"ip"`
	IssuedAt  time.Time `gorm:"not null" json:"issued_at"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
