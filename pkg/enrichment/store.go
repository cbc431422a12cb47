package enrichment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/copiloto/salesdash/pkg/observability"
)

// Profile is the merged identity row persisted per sign-in
type Profile struct {
	UserID          string
	Email           string
	DisplayName     string
	FirstName       string
	LastName        string
	ProfileImageURL string
	JobTitle        string
	Department      string
	OfficeLocation  string
	UserAgent       string
	IPAddress       string
	IDToken         string
	AccessToken     string
	RawClaims       json.RawMessage
}

// ProfileStore persists enriched profiles to the user_info table
type ProfileStore struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewProfileStore creates a profile store
func NewProfileStore(db *sql.DB, logger *observability.Logger) *ProfileStore {
	return &ProfileStore{db: db, logger: logger}
}

// Upsert writes a profile keyed on user_id. The write is a single atomic
// statement so concurrent sign-ins for the same subject can never produce
// duplicate rows; the newest write wins.
func (s *ProfileStore) Upsert(ctx context.Context, p *Profile) error {
	if p.UserID == "" {
		return fmt.Errorf("profile missing user_id")
	}

	query := `
		INSERT INTO user_info (
			user_id, email, display_name, first_name, last_name,
			profile_image_url, job_title, department, office_location,
			user_agent, ip_address, id_token, access_token, raw_profile,
			login_timestamp, last_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			NOW(), NOW(), NOW(), NOW()
		)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			profile_image_url = EXCLUDED.profile_image_url,
			job_title = EXCLUDED.job_title,
			department = EXCLUDED.department,
			office_location = EXCLUDED.office_location,
			user_agent = EXCLUDED.user_agent,
			ip_address = EXCLUDED.ip_address,
			id_token = EXCLUDED.id_token,
			access_token = EXCLUDED.access_token,
			raw_profile = EXCLUDED.raw_profile,
			login_timestamp = NOW(),
			last_active = NOW(),
			updated_at = NOW()`

	raw := p.RawClaims
	if raw == nil {
		raw = json.RawMessage("{}")
	}

	_, err := s.db.ExecContext(ctx, query,
		p.UserID, p.Email, p.DisplayName, p.FirstName, p.LastName,
		p.ProfileImageURL, p.JobTitle, p.Department, p.OfficeLocation,
		p.UserAgent, p.IPAddress, p.IDToken, p.AccessToken, []byte(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user profile: %w", err)
	}

	s.logger.WithField("user_id", p.UserID).Debug("user profile upserted")
	return nil
}

// InternalProfile is the shape returned by the internal sales API
type InternalProfile struct {
	DisplayName       string `json:"displayName"`
	GivenName         string `json:"givenName"`
	JobTitle          string `json:"jobTitle"`
	Email             string `json:"email"`
	UserPrincipalName string `json:"userPrincipalName"`
	CodigoBP          string `json:"codigo_bp"`
	NomeBP            string `json:"nome_bp"`
	LoginADFS         string `json:"login_adfs"`
	IsRepresentante   bool   `json:"is_representante"`
	ERPEmail          string `json:"erp_email"`
	DataSincronizacao string `json:"data_sincronizacao"`
	HoraSincronizacao string `json:"hora_sincronizacao"`
}

// InternalProfileStore persists internal-API profiles to user_info_adfs
type InternalProfileStore struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewInternalProfileStore creates an internal-profile store
func NewInternalProfileStore(db *sql.DB, logger *observability.Logger) *InternalProfileStore {
	return &InternalProfileStore{db: db, logger: logger}
}

// Upsert writes an internal profile keyed on user_id, keeping the raw
// payload alongside the parsed columns
func (s *InternalProfileStore) Upsert(ctx context.Context, userID string, raw json.RawMessage) error {
	if userID == "" {
		return fmt.Errorf("internal profile missing user_id")
	}

	var p InternalProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("failed to parse internal profile: %w", err)
	}

	query := `
		INSERT INTO user_info_adfs (
			user_id, display_name, given_name, job_title, email,
			user_principal_name, codigo_bp, nome_bp, login_adfs,
			is_representante, erp_email, data_sincronizacao,
			hora_sincronizacao, raw_data, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			NOW(), NOW()
		)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			given_name = EXCLUDED.given_name,
			job_title = EXCLUDED.job_title,
			email = EXCLUDED.email,
			user_principal_name = EXCLUDED.user_principal_name,
			codigo_bp = EXCLUDED.codigo_bp,
			nome_bp = EXCLUDED.nome_bp,
			login_adfs = EXCLUDED.login_adfs,
			is_representante = EXCLUDED.is_representante,
			erp_email = EXCLUDED.erp_email,
			data_sincronizacao = EXCLUDED.data_sincronizacao,
			hora_sincronizacao = EXCLUDED.hora_sincronizacao,
			raw_data = EXCLUDED.raw_data,
			updated_at = NOW()`

	_, err := s.db.ExecContext(ctx, query,
		userID, p.DisplayName, p.GivenName, p.JobTitle, p.Email,
		p.UserPrincipalName, p.CodigoBP, p.NomeBP, p.LoginADFS,
		p.IsRepresentante, p.ERPEmail, p.DataSincronizacao,
		p.HoraSincronizacao, []byte(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert internal profile: %w", err)
	}

	s.logger.WithField("user_id", userID).Debug("internal profile upserted")
	return nil
}
