package models

import "time"

// MediaObject stores proof media fetched from the SMS provider. Bodies are
// small MMS images, so they live in the database next to everything else.
type MediaObject struct {
	Key         string    `db:"key" json:"key"`
	ContentType string    `db:"content_type" json:"content_type"`
	Body        []byte    `db:"body" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// TableName returns the database table name
func (MediaObject) TableName() string {
	return "media_objects"
}
