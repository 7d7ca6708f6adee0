package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/3ltranslate/legtrans/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	is_admin BOOLEAN NOT NULL DEFAULT FALSE,
	preferred_language TEXT NOT NULL DEFAULT '',
	profession TEXT NOT NULL DEFAULT '',
	subscription_expires_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS translations (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id TEXT NOT NULL,
	source_text TEXT NOT NULL,
	translated_text TEXT NOT NULL,
	source_language TEXT NOT NULL,
	target_language TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS translations_user_created_idx ON translations (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS translators (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id TEXT NOT NULL UNIQUE,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	wilaya TEXT NOT NULL,
	accreditation_number TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	office_address TEXT NOT NULL DEFAULT '',
	bio TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	languages TEXT[] NOT NULL DEFAULT '{}',
	specialties TEXT[] NOT NULL DEFAULT '{}',
	verified BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS activation_codes (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	code TEXT NOT NULL UNIQUE,
	duration_days INTEGER NOT NULL CHECK (duration_days > 0),
	status TEXT NOT NULL DEFAULT 'unused',
	used_by TEXT,
	used_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// uniqueViolation is the PostgreSQL error code for a unique constraint failure
const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"
)

// PostgresStore persists to PostgreSQL through lib/pq
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres opens and pings the database at dsn
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewPostgresFromDB(db), nil
}

func NewPostgresFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables if they do not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Save(ctx context.Context, rec models.TranslationRecord) (models.TranslationRecord, error) {
	if rec.OwnerID == "" {
		return models.TranslationRecord{}, ErrMissingOwner
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO translations (user_id, source_text, translated_text, source_language, target_language, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		rec.OwnerID, rec.SourceText, rec.TranslatedText, rec.SourceLanguage, rec.TargetLanguage, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return models.TranslationRecord{}, fmt.Errorf("failed to insert translation: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context, ownerID string, limit int) ([]models.TranslationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, source_text, translated_text, source_language, target_language, created_at
		FROM translations WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		ownerID, limitOrDefault(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query translations: %w", err)
	}
	defer rows.Close()

	records := []models.TranslationRecord{}
	for rows.Next() {
		var r models.TranslationRecord
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.SourceText, &r.TranslatedText, &r.SourceLanguage, &r.TargetLanguage, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan translation: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate translations: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) Delete(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM translations WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		// an id that is not a UUID cannot name any row
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == invalidTextRepresentation {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete translation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, ownerID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM translations WHERE user_id = $1`, ownerID); err != nil {
		return fmt.Errorf("failed to clear translations: %w", err)
	}
	return nil
}

const profileColumns = `user_id, display_name, email, is_admin, preferred_language, profession, subscription_expires_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.Profile, error) {
	var p models.Profile
	var expires sql.NullTime
	if err := row.Scan(&p.UserID, &p.DisplayName, &p.Email, &p.IsAdmin, &p.PreferredLanguage, &p.Profession, &expires, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if expires.Valid {
		p.SubscriptionExpiresAt = &expires.Time
	}
	return &p, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, p models.Profile) error {
	if p.UserID == "" {
		return ErrMissingOwner
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, display_name, email, is_admin, preferred_language, profession, subscription_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			email = EXCLUDED.email,
			is_admin = EXCLUDED.is_admin,
			preferred_language = EXCLUDED.preferred_language,
			profession = EXCLUDED.profession,
			subscription_expires_at = EXCLUDED.subscription_expires_at,
			updated_at = now()`,
		p.UserID, p.DisplayName, p.Email, p.IsAdmin, p.PreferredLanguage, p.Profession, nullTime(p.SubscriptionExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateCode(ctx context.Context, code models.ActivationCode) (models.ActivationCode, error) {
	if err := validateCode(&code); err != nil {
		return models.ActivationCode{}, err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activation_codes (id, code, duration_days, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		code.ID, code.Code, code.DurationDays, code.Status, code.CreatedAt,
	)
	if err != nil {
		return models.ActivationCode{}, fmt.Errorf("failed to insert activation code: %w", err)
	}
	return code, nil
}

func (s *PostgresStore) RedeemCode(ctx context.Context, userID, code string, now time.Time) (*models.Profile, error) {
	if userID == "" {
		return nil, ErrMissingOwner
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var codeID string
	var days int
	err = tx.QueryRowContext(ctx,
		`SELECT id, duration_days FROM activation_codes WHERE code = $1 AND status = $2 FOR UPDATE`,
		normalizeCode(code), models.CodeStatusUnused,
	).Scan(&codeID, &days)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up activation code: %w", err)
	}

	var current sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT subscription_expires_at FROM profiles WHERE user_id = $1 FOR UPDATE`, userID,
	).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up profile: %w", err)
	}
	var currentPtr *time.Time
	if current.Valid {
		currentPtr = &current.Time
	}
	expires := extendSubscription(currentPtr, now, days)

	if _, err := tx.ExecContext(ctx,
		`UPDATE activation_codes SET status = $1, used_by = $2, used_at = $3 WHERE id = $4`,
		models.CodeStatusUsed, userID, now, codeID,
	); err != nil {
		return nil, fmt.Errorf("failed to mark activation code used: %w", err)
	}

	p, err := scanProfile(tx.QueryRowContext(ctx,
		`INSERT INTO profiles (user_id, subscription_expires_at) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET subscription_expires_at = EXCLUDED.subscription_expires_at, updated_at = now()
		RETURNING `+profileColumns,
		userID, expires,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to extend subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit redemption: %w", err)
	}
	return p, nil
}

const translatorColumns = `id, user_id, first_name, last_name, wilaya, accreditation_number, email, phone, office_address, bio, image_url, languages, specialties, verified, created_at`

func (s *PostgresStore) CreateTranslator(ctx context.Context, t models.Translator) (models.Translator, error) {
	if err := validateTranslator(&t); err != nil {
		return models.Translator{}, err
	}
	t.Verified = false
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO translators (user_id, first_name, last_name, wilaya, accreditation_number, email, phone, office_address, bio, image_url, languages, specialties)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id, created_at`,
		t.UserID, t.FirstName, t.LastName, t.Wilaya, t.AccreditationNumber, t.Email, t.Phone, t.OfficeAddress, t.Bio, t.ImageURL,
		pq.Array(t.Languages), pq.Array(t.Specialties),
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.Translator{}, ErrAlreadyRegistered
		}
		return models.Translator{}, fmt.Errorf("failed to insert translator: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListTranslators(ctx context.Context, filter TranslatorFilter) ([]models.Translator, error) {
	var where []string
	var args []any
	if !filter.IncludeUnverified {
		where = append(where, "verified")
	}
	if filter.Wilaya != "" {
		args = append(args, filter.Wilaya)
		where = append(where, fmt.Sprintf("lower(wilaya) = lower($%d)", len(args)))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(first_name || ' ' || last_name ILIKE $%d OR array_to_string(specialties, ' ') ILIKE $%d)", n, n))
	}

	query := `SELECT ` + translatorColumns + ` FROM translators`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query translators: %w", err)
	}
	defer rows.Close()

	result := []models.Translator{}
	for rows.Next() {
		var t models.Translator
		if err := rows.Scan(&t.ID, &t.UserID, &t.FirstName, &t.LastName, &t.Wilaya, &t.AccreditationNumber,
			&t.Email, &t.Phone, &t.OfficeAddress, &t.Bio, &t.ImageURL,
			pq.Array(&t.Languages), pq.Array(&t.Specialties), &t.Verified, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan translator: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate translators: %w", err)
	}
	return result, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
