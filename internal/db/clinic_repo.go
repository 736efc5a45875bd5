package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"screeningcomms/internal/types"
)

const clinicColumns = `id, code, bso_code, name, alt_name, holding_clinic, location_code,
	address_line_1, address_line_2, address_line_3, address_line_4, address_line_5,
	postcode, location_description, location_url, created_at, updated_at`

// ClinicRepository persists Clinic rows keyed by (bso_code, code).
type ClinicRepository struct {
	db DBTX
}

// NewClinicRepository creates a ClinicRepository over a pool or transaction.
func NewClinicRepository(db DBTX) *ClinicRepository {
	return &ClinicRepository{db: db}
}

// GetOrCreate inserts c when no clinic with the same (bso_code, code)
// exists. Descriptive fields are only taken on insert; an existing row is
// left untouched. c.ID is set to the stored row's id in both cases.
//
// The conflict branch performs a no-op update so RETURNING yields the
// existing id; xmax = 0 only holds for a freshly inserted tuple.
func (r *ClinicRepository) GetOrCreate(ctx context.Context, c *types.Clinic) (bool, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	var created bool
	err := r.db.QueryRow(ctx,
		`INSERT INTO clinics (id, code, bso_code, name, alt_name, holding_clinic, location_code,
			address_line_1, address_line_2, address_line_3, address_line_4, address_line_5, postcode)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (bso_code, code) DO UPDATE SET code = clinics.code
		 RETURNING id, (xmax = 0)`,
		c.ID, c.Code, c.BSOCode, c.Name, c.AltName, c.HoldingClinic, c.LocationCode,
		c.AddressLine1, c.AddressLine2, c.AddressLine3, c.AddressLine4, c.AddressLine5, c.Postcode,
	).Scan(&c.ID, &created)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert clinic", err)
	}
	return created, nil
}

// SeedLocation creates c, or refreshes location_description and
// location_url on the existing clinic. It is the only write path that
// changes a clinic after creation.
func (r *ClinicRepository) SeedLocation(ctx context.Context, c *types.Clinic) (bool, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	var created bool
	err := r.db.QueryRow(ctx,
		`INSERT INTO clinics (id, code, bso_code, name, alt_name, holding_clinic, location_code,
			address_line_1, address_line_2, address_line_3, address_line_4, address_line_5, postcode,
			location_description, location_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (bso_code, code) DO UPDATE
		 SET location_description = EXCLUDED.location_description,
		     location_url = EXCLUDED.location_url,
		     updated_at = NOW()
		 RETURNING id, (xmax = 0)`,
		c.ID, c.Code, c.BSOCode, c.Name, c.AltName, c.HoldingClinic, c.LocationCode,
		c.AddressLine1, c.AddressLine2, c.AddressLine3, c.AddressLine4, c.AddressLine5, c.Postcode,
		c.LocationDescription, c.LocationURL,
	).Scan(&c.ID, &created)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to seed clinic", err)
	}
	return created, nil
}

// GetByCode returns the clinic identified by (bsoCode, code).
func (r *ClinicRepository) GetByCode(ctx context.Context, bsoCode, code string) (*types.Clinic, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+clinicColumns+` FROM clinics WHERE bso_code = $1 AND code = $2`,
		bsoCode, code,
	)
	c, err := scanClinic(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundClinic, "clinic not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve clinic", err)
	}
	return c, nil
}

func scanClinic(row pgx.Row) (*types.Clinic, error) {
	var c types.Clinic
	if err := row.Scan(clinicDest(&c)...); err != nil {
		return nil, err
	}
	return &c, nil
}
