package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrEmailTaken is returned when a signup or profile update collides with an
// existing account's email.
var ErrEmailTaken = errors.New("email already registered")

func (s *SQLiteStore) GetParamedicByEmail(ctx context.Context, email string) (*Paramedic, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, name, email, medical_id, national_id, age, password_hash, created_at, updated_at
        FROM paramedics WHERE email = ?`, email)
	return scanParamedic(row)
}

func (s *SQLiteStore) GetParamedicByID(ctx context.Context, id int64) (*Paramedic, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, name, email, medical_id, national_id, age, password_hash, created_at, updated_at
        FROM paramedics WHERE id = ?`, id)
	return scanParamedic(row)
}

func (s *SQLiteStore) CreateParamedic(ctx context.Context, p *Paramedic) (*Paramedic, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO paramedics (name, email, medical_id, national_id, age, password_hash, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Email, p.MedicalID, p.NationalID, p.Age, p.PasswordHash, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to insert paramedic: %w", errors.Join(ErrUnavailable, err))
	}
	id, _ := res.LastInsertId()
	return s.GetParamedicByID(ctx, id)
}

// UpdateParamedic persists the mutable profile fields of p (name, email, age,
// password hash). Identity documents are set at signup and not editable here.
func (s *SQLiteStore) UpdateParamedic(ctx context.Context, p *Paramedic) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE paramedics
        SET name = ?, email = ?, age = ?, password_hash = ?, updated_at = ?
        WHERE id = ?`,
		p.Name, p.Email, p.Age, p.PasswordHash, time.Now().UTC(), p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to update paramedic: %w", errors.Join(ErrUnavailable, err))
	}
	return nil
}

func scanParamedic(row *sql.Row) (*Paramedic, error) {
	var p Paramedic
	var medicalID, nationalID sql.NullString
	var age sql.NullInt64
	err := row.Scan(&p.ID, &p.Name, &p.Email, &medicalID, &nationalID, &age, &p.PasswordHash, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to query paramedic: %w", errors.Join(ErrUnavailable, err))
	}
	if medicalID.Valid {
		p.MedicalID = &medicalID.String
	}
	if nationalID.Valid {
		p.NationalID = &nationalID.String
	}
	if age.Valid {
		a := int(age.Int64)
		p.Age = &a
	}
	return &p, nil
}
