package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/smsconsole-backend/internal/model"
)

type ContactRepositoryInterface interface {
	GetByNumber(ctx context.Context, number string) (*model.Contact, error)
	// EnsureConversation upserts the contact for number and finds or creates
	// the conversation with phoneID, atomically in one transaction.
	EnsureConversation(ctx context.Context, phoneID, number, name string, writeName, overwrite bool) (*model.Contact, *model.Conversation, error)
	UpdateConversationSnapshot(ctx context.Context, conversationID, lastMessage string, at time.Time, incrementUnread bool) error
}

type ContactRepository struct {
	DB *sql.DB
}

func (r *ContactRepository) GetByNumber(ctx context.Context, number string) (*model.Contact, error) {
	var c model.Contact
	var name sql.NullString
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, name, phone_number, created_at FROM contacts WHERE phone_number=$1`, number,
	).Scan(&c.ID, &name, &c.PhoneNumber, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	c.Name = name.String
	return &c, nil
}

// EnsureConversation runs contact upsert and conversation lookup in a single
// transaction so concurrent sends to the same number cannot create duplicate
// conversations. Existing contact names are preserved unless the caller
// explicitly asked to overwrite or no name was stored yet.
func (r *ContactRepository) EnsureConversation(ctx context.Context, phoneID, number, name string, writeName, overwrite bool) (*model.Contact, *model.Conversation, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	contact, err := r.upsertContact(ctx, tx, number, strings.TrimSpace(name), writeName, overwrite)
	if err != nil {
		return nil, nil, err
	}

	conv := &model.Conversation{}
	err = tx.QueryRowContext(ctx,
		`SELECT id, contact_id, phone_id, last_message, last_message_time, unread_count
         FROM conversations WHERE contact_id=$1 AND phone_id=$2 FOR UPDATE`,
		contact.ID, phoneID,
	).Scan(&conv.ID, &conv.ContactID, &conv.PhoneID, &conv.LastMessage, &conv.LastMessageTime, &conv.UnreadCount)
	if err == sql.ErrNoRows {
		conv = &model.Conversation{
			ID:              uuid.NewString(),
			ContactID:       contact.ID,
			PhoneID:         phoneID,
			LastMessageTime: time.Now(),
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO conversations (id, contact_id, phone_id, last_message, last_message_time, unread_count)
             VALUES ($1, $2, $3, '', $4, 0)`,
			conv.ID, conv.ContactID, conv.PhoneID, conv.LastMessageTime,
		)
	}
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return contact, conv, nil
}

func (r *ContactRepository) upsertContact(ctx context.Context, tx *sql.Tx, number, name string, writeName, overwrite bool) (*model.Contact, error) {
	var c model.Contact
	var stored sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT id, name, phone_number, created_at FROM contacts WHERE phone_number=$1 FOR UPDATE`, number,
	).Scan(&c.ID, &stored, &c.PhoneNumber, &c.CreatedAt)
	switch {
	case err == sql.ErrNoRows:
		c = model.Contact{ID: uuid.NewString(), PhoneNumber: number, CreatedAt: time.Now()}
		if writeName {
			c.Name = name
		}
		var insertName interface{}
		if c.Name != "" {
			insertName = c.Name
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO contacts (id, name, phone_number, created_at) VALUES ($1, $2, $3, $4)`,
			c.ID, insertName, c.PhoneNumber, c.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		return &c, nil
	case err != nil:
		return nil, err
	}

	c.Name = stored.String
	if writeName && name != "" && (c.Name == "" || overwrite) {
		if _, err := tx.ExecContext(ctx, `UPDATE contacts SET name=$1 WHERE id=$2`, name, c.ID); err != nil {
			return nil, err
		}
		c.Name = name
	}
	return &c, nil
}

func (r *ContactRepository) UpdateConversationSnapshot(ctx context.Context, conversationID, lastMessage string, at time.Time, incrementUnread bool) error {
	query := `UPDATE conversations SET last_message=$1, last_message_time=$2 WHERE id=$3`
	if incrementUnread {
		query = `UPDATE conversations SET last_message=$1, last_message_time=$2, unread_count=unread_count+1 WHERE id=$3`
	}
	_, err := r.DB.ExecContext(ctx, query, lastMessage, at, conversationID)
	return err
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
