package schema

import "time"

// AccessGrant represents the access_grants table.
// A row exists only for (token, account) pairs that purchased access; absence means no access.
type AccessGrant struct {
	TokenID   uint64    `gorm:"column:token_id;primaryKey;autoIncrement:false" msgpack:"token_id"`
	Account   string    `gorm:"column:account;primaryKey;type:text" msgpack:"account"`
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz" msgpack:"created_at"`
}

// TableName specifies the table name for the AccessGrant model
func (AccessGrant) TableName() string {
	return "access_grants"
}
