package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/diasbot/insta-consultant/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

// PostgresStorage is the durable LeadStorage.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetLead(ctx context.Context, instagramID string) (*models.Lead, error) {
	query := `
		SELECT instagram_id, name, email, telegram_username, phone_number,
		       city_country, interests, final_decision, paid, updated_at
		FROM leads
		WHERE instagram_id = $1`

	lead := &models.Lead{}
	err := s.db.QueryRowContext(ctx, query, instagramID).Scan(
		&lead.InstagramID,
		&lead.Name,
		&lead.Email,
		&lead.TelegramUsername,
		&lead.PhoneNumber,
		&lead.CityCountry,
		&lead.Interests,
		&lead.FinalDecision,
		&lead.Paid,
		&lead.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying lead: %w", err)
	}
	return lead, nil
}

func (s *PostgresStorage) UpsertLead(ctx context.Context, instagramID string, update models.LeadUpdate) (*models.Lead, error) {
	lead, err := s.GetLead(ctx, instagramID)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		lead = &models.Lead{InstagramID: instagramID}
	}
	lead.Apply(update)

	query := `
		INSERT INTO leads (instagram_id, name, email, telegram_username, phone_number,
		                   city_country, interests, final_decision, paid, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (instagram_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			telegram_username = EXCLUDED.telegram_username,
			phone_number = EXCLUDED.phone_number,
			city_country = EXCLUDED.city_country,
			interests = EXCLUDED.interests,
			final_decision = EXCLUDED.final_decision,
			paid = EXCLUDED.paid,
			updated_at = now()
		RETURNING updated_at`

	err = s.db.QueryRowContext(ctx, query,
		lead.InstagramID,
		lead.Name,
		lead.Email,
		lead.TelegramUsername,
		lead.PhoneNumber,
		lead.CityCountry,
		lead.Interests,
		lead.FinalDecision,
		lead.Paid,
	).Scan(&lead.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("error upserting lead: %w", err)
	}
	return lead, nil
}

func (s *PostgresStorage) LeadsNeedingReminder(ctx context.Context) ([]*models.Lead, error) {
	query := `
		SELECT instagram_id, name, email, telegram_username, phone_number,
		       city_country, interests, final_decision, paid, updated_at
		FROM leads
		WHERE final_decision IN ('', $1, $2) OR paid = FALSE
		ORDER BY updated_at ASC`

	rows, err := s.db.QueryContext(ctx, query, models.DecisionNotSure, models.DecisionThinking)
	if err != nil {
		return nil, fmt.Errorf("error querying leads for reminders: %w", err)
	}
	defer rows.Close()

	var leads []*models.Lead
	for rows.Next() {
		lead := &models.Lead{}
		err := rows.Scan(
			&lead.InstagramID,
			&lead.Name,
			&lead.Email,
			&lead.TelegramUsername,
			&lead.PhoneNumber,
			&lead.CityCountry,
			&lead.Interests,
			&lead.FinalDecision,
			&lead.Paid,
			&lead.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning lead: %w", err)
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
