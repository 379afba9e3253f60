// Package transcript persists transcript lines produced in a room so that
// interviews can be reviewed after the fact.
package transcript

import "time"

type Line struct {
	ID      string `gorm:"primaryKey" json:"id"`
	RoomID  string `gorm:"not null;index" json:"room_id"`
	Speaker string `gorm:"not null" json:"speaker"`
	Text    string `gorm:"not null" json:"text"`

	CreatedAt time.Time `json:"created_at"`
}
