package models

import "time"

// Company is the local copy of a CRM company, keyed by the provider's ID.
// Notes and LocalTags are owned locally and never written by sync.
type Company struct {
	ID           string    `gorm:"column:id;primaryKey" bson:"_id" json:"id"`
	ExternalID   string    `gorm:"column:external_id;uniqueIndex" bson:"external_id" json:"externalId"`
	Name         string    `gorm:"column:name" bson:"name" json:"name"`
	VATNumber    string    `gorm:"column:vat_number" bson:"vat_number" json:"vatNumber"`
	Email        string    `gorm:"column:email" bson:"email" json:"email"`
	Phone        string    `gorm:"column:phone" bson:"phone" json:"phone"`
	Website      string    `gorm:"column:website" bson:"website" json:"website"`
	BusinessType string    `gorm:"column:business_type" bson:"business_type" json:"businessType"`
	Status       string    `gorm:"column:status" bson:"status" json:"status"`
	Notes        *string   `gorm:"column:notes" bson:"notes,omitempty" json:"notes,omitempty"`
	LocalTags    *string   `gorm:"column:local_tags" bson:"local_tags,omitempty" json:"localTags,omitempty"`
	SyncedAt     time.Time `gorm:"column:synced_at" bson:"synced_at" json:"syncedAt"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" bson:"updated_at" json:"updatedAt"`
}

// TableName specifies the table name for GORM
func (Company) TableName() string {
	return "company"
}

// SyncedFields returns the columns a sync run is allowed to overwrite.
func (c *Company) SyncedFields() map[string]interface{} {
	return map[string]interface{}{
		"name":          c.Name,
		"vat_number":    c.VATNumber,
		"email":         c.Email,
		"phone":         c.Phone,
		"website":       c.Website,
		"business_type": c.BusinessType,
		"status":        c.Status,
		"synced_at":     c.SyncedAt,
	}
}
