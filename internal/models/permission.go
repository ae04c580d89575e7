package models

// RolePermission is the baseline policy table: one row per (role, code) pair
// stating whether the permission is granted to users of that role by default.
// Mutated only by holders of can:manage-users.
type RolePermission struct {
	BaseModel

	Role    Role   `gorm:"not null;uniqueIndex:idx_role_permissions_role_code" json:"role"`
	Code    string `gorm:"not null;uniqueIndex:idx_role_permissions_role_code" json:"code"`
	Granted bool   `gorm:"not null" json:"granted"`
}

// UserPermission overrides the role default for a single user and permission
// code. Row presence is what matters: deleting the row restores inheritance
// from the role default, which is not the same as setting Granted to false.
type UserPermission struct {
	BaseModel

	UserID  string `gorm:"type:uuid;not null;uniqueIndex:idx_user_permissions_user_code" json:"user_id"`
	User    *User  `gorm:"foreignKey:UserID" json:"-"`
	Code    string `gorm:"not null;uniqueIndex:idx_user_permissions_user_code" json:"code"`
	Granted bool   `gorm:"not null" json:"granted"`
}
