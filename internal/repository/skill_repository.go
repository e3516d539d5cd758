package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/uniflow/facilitation-api/internal/models"
)

// SkillRepository reads facilitator module skill declarations.
type SkillRepository struct {
	db *sqlx.DB
}

// NewSkillRepository constructs the repository.
func NewSkillRepository(db *sqlx.DB) *SkillRepository {
	return &SkillRepository{db: db}
}

// GetLevel returns the declared level for a facilitator and module. A missing
// row is reported as sql.ErrNoRows; callers decide the default.
func (r *SkillRepository) GetLevel(ctx context.Context, facilitatorID, moduleID string) (models.SkillLevel, error) {
	const query = `SELECT level FROM facilitator_skills WHERE facilitator_id = $1 AND module_id = $2`
	var level models.SkillLevel
	if err := r.db.GetContext(ctx, &level, query, facilitatorID, moduleID); err != nil {
		if err == sql.ErrNoRows {
			return "", err
		}
		return "", fmt.Errorf("get skill level: %w", err)
	}
	return level, nil
}

// MapLevelsByModule returns facilitator -> level for everyone declared on the
// module.
func (r *SkillRepository) MapLevelsByModule(ctx context.Context, moduleID string) (map[string]models.SkillLevel, error) {
	const query = `SELECT facilitator_id, level FROM facilitator_skills WHERE module_id = $1`
	rows := []struct {
		FacilitatorID string            `db:"facilitator_id"`
		Level         models.SkillLevel `db:"level"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, moduleID); err != nil {
		return nil, fmt.Errorf("map skill levels: %w", err)
	}
	levels := make(map[string]models.SkillLevel, len(rows))
	for _, row := range rows {
		levels[row.FacilitatorID] = row.Level
	}
	return levels, nil
}
