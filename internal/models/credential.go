package models

import "time"

// Provider names for the OAuth integrations this service talks to.
const (
	ProviderTeamleader = "teamleader"
)

// OAuthCredential is the single stored token pair for an external provider.
// There is at most one row per provider.
type OAuthCredential struct {
	ID                   string     `gorm:"column:id;primaryKey" bson:"_id" json:"id"`
	Provider             string     `gorm:"column:provider;uniqueIndex" bson:"provider" json:"provider"`
	AccessToken          string     `gorm:"column:access_token" bson:"access_token" json:"-"`
	AccessTokenExpiresAt *time.Time `gorm:"column:access_token_expires_at" bson:"access_token_expires_at,omitempty" json:"accessTokenExpiresAt,omitempty"`
	RefreshToken         *string    `gorm:"column:refresh_token" bson:"refresh_token,omitempty" json:"-"`
	TokenType            string     `gorm:"column:token_type" bson:"token_type" json:"tokenType"`
	Scope                string     `gorm:"column:scope" bson:"scope" json:"scope"`
	RefreshFailedAt      *time.Time `gorm:"column:refresh_failed_at" bson:"refresh_failed_at,omitempty" json:"refreshFailedAt,omitempty"`
	CreatedAt            time.Time  `gorm:"column:created_at" bson:"created_at" json:"createdAt"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;autoUpdateTime:false" bson:"updated_at" json:"updatedAt"`
	LastUsedAt           *time.Time `gorm:"column:last_used_at" bson:"last_used_at,omitempty" json:"lastUsedAt,omitempty"`
}

// TableName specifies the table name for GORM
func (OAuthCredential) TableName() string {
	return "oauth_credential"
}

// HasRefreshToken reports whether a non-empty refresh token is stored.
func (c *OAuthCredential) HasRefreshToken() bool {
	return c.RefreshToken != nil && *c.RefreshToken != ""
}
