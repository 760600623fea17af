// internal/model/contact.go
package model

import "time"

type Contact struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// PhoneNumber is a virtual number the operator sends from.
type PhoneNumber struct {
	ID        string `db:"id" json:"id"`
	Number    string `db:"number" json:"number"`
	Device    string `db:"device" json:"device"`
	IsDefault bool   `db:"is_default" json:"is_default"`
}

// Conversation groups messages between one contact and one sender number.
// The (ContactID, PhoneID) pair is unique.
type Conversation struct {
	ID              string    `db:"id" json:"id"`
	ContactID       string    `db:"contact_id" json:"contact_id"`
	PhoneID         string    `db:"phone_id" json:"phone_id"`
	LastMessage     string    `db:"last_message" json:"last_message"`
	LastMessageTime time.Time `db:"last_message_time" json:"last_message_time"`
	UnreadCount     int       `db:"unread_count" json:"unread_count"`
}
