package model

import "time"

// User represents an account that can log in to the system.
type User struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	Email          string    `json:"email" gorm:"uniqueIndex;size:255;not null"`
	Username       string    `json:"username" gorm:"uniqueIndex;size:100;not null"`
	HashedPassword string    `json:"-" gorm:"size:255;not null"` // Never expose in JSON
	FullName       *string   `json:"full_name" gorm:"size:255"`
	IsActive       bool      `json:"is_active" gorm:"not null;default:true"`
	IsSuperuser    bool      `json:"is_superuser" gorm:"not null;default:false"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UserPatch carries a partial update. Nil fields are left untouched.
// HashedPassword must already be a digest; plaintext never reaches the store.
type UserPatch struct {
	Email          *string
	FullName       *string
	HashedPassword *string
	IsActive       *bool
	IsSuperuser    *bool
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Email == nil && p.FullName == nil && p.HashedPassword == nil &&
		p.IsActive == nil && p.IsSuperuser == nil
}

// Columns returns the column/value pairs to update.
func (p UserPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if p.Email != nil {
		cols["email"] = *p.Email
	}
	if p.FullName != nil {
		cols["full_name"] = *p.FullName
	}
	if p.HashedPassword != nil {
		cols["hashed_password"] = *p.HashedPassword
	}
	if p.IsActive != nil {
		cols["is_active"] = *p.IsActive
	}
	if p.IsSuperuser != nil {
		cols["is_superuser"] = *p.IsSuperuser
	}
	return cols
}
