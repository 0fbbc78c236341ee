package schema

import "time"

// KeyValueStore holds singleton ledger state: ID counters and the platform wallet
type KeyValueStore struct {
	Key       string    `gorm:"primaryKey;type:text" msgpack:"key"`
	Value     string    `gorm:"type:text;not null" msgpack:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" msgpack:"updated_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" msgpack:"created_at"`
}

func (KeyValueStore) TableName() string {
	return "key_value_store"
}
