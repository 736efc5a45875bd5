package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"screeningcomms/internal/types"
)

// SeedResult counts clinics created and refreshed by SeedClinics.
type SeedResult struct {
	Created int
	Updated int
}

// SeedClinics reads a JSON array of clinics and creates the missing ones.
// Existing clinics only have location_description and location_url
// refreshed. All clinics are written in one transaction.
func SeedClinics(ctx context.Context, uow UnitOfWork, r io.Reader, logger *slog.Logger) (SeedResult, error) {
	var res SeedResult
	if logger == nil {
		logger = slog.Default()
	}

	var clinics []*types.Clinic
	if err := json.NewDecoder(r).Decode(&clinics); err != nil {
		return res, types.NewAppError(types.ErrCodeValidationInvalidPayload, "invalid clinic seed file", err)
	}
	for i, c := range clinics {
		if c == nil || c.Code == "" || c.BSOCode == "" {
			return res, types.NewAppError(types.ErrCodeValidationMissingField,
				fmt.Sprintf("clinic %d: code and bso_code are required", i), nil)
		}
	}

	err := uow.Do(ctx, func(ctx context.Context, repos Repos) error {
		res = SeedResult{}
		for _, c := range clinics {
			created, err := repos.Clinics.SeedLocation(ctx, c)
			if err != nil {
				return err
			}
			if created {
				res.Created++
				logger.InfoContext(ctx, "clinic created", "bso_code", c.BSOCode, "code", c.Code, "id", c.ID)
			} else {
				res.Updated++
				logger.InfoContext(ctx, "clinic location refreshed", "bso_code", c.BSOCode, "code", c.Code, "id", c.ID)
			}
		}
		return nil
	})
	return res, err
}
