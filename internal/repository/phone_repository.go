package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/unclebandit/smsconsole-backend/internal/model"
)

type PhoneNumberRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.PhoneNumber, error)
	GetByNumber(ctx context.Context, number string) (*model.PhoneNumber, error)
	Create(ctx context.Context, p *model.PhoneNumber) error
}

type PhoneNumberRepository struct {
	DB *sql.DB
}

func (r *PhoneNumberRepository) GetByID(ctx context.Context, id string) (*model.PhoneNumber, error) {
	return r.get(ctx, `SELECT id, number, device, is_default FROM phone_numbers WHERE id=$1`, id)
}

func (r *PhoneNumberRepository) GetByNumber(ctx context.Context, number string) (*model.PhoneNumber, error) {
	return r.get(ctx, `SELECT id, number, device, is_default FROM phone_numbers WHERE number=$1`, number)
}

func (r *PhoneNumberRepository) get(ctx context.Context, query, arg string) (*model.PhoneNumber, error) {
	var p model.PhoneNumber
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(&p.ID, &p.Number, &p.Device, &p.IsDefault)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PhoneNumberRepository) Create(ctx context.Context, p *model.PhoneNumber) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	query := `INSERT INTO phone_numbers (id, number, device, is_default) VALUES ($1, $2, $3, $4)`
	_, err := r.DB.ExecContext(ctx, query, p.ID, p.Number, p.Device, p.IsDefault)
	return err
}

var _ PhoneNumberRepositoryInterface = (*PhoneNumberRepository)(nil)
