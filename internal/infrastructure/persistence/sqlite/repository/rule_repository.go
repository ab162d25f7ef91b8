package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	"contentgate/internal/infrastructure/persistence/sqlite/model"
	"contentgate/internal/ports"
)

func (s *Store) ListRules(ctx context.Context, includeInactive bool) ([]ports.RuleVersion, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.RuleVersion{}).Where("superseded_at IS NULL")
	if !includeInactive {
		query = query.Where("active = ?", true)
	}

	var rows []model.RuleVersion
	if err := query.Order("priority desc").Order("rule_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query rules")
	}
	return mapRules(rows), nil
}

func (s *Store) GetRule(ctx context.Context, ruleID string) (ports.RuleVersion, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return ports.RuleVersion{}, err
	}

	var row model.RuleVersion
	if err := db.Where("rule_id = ? AND superseded_at IS NULL", strings.TrimSpace(ruleID)).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.RuleVersion{}, ports.ErrRuleNotFound
		}
		return ports.RuleVersion{}, errs.Wrap(err, "query rule")
	}
	return mapRule(row), nil
}

func (s *Store) ListRuleHistory(ctx context.Context, ruleID string) ([]ports.RuleVersion, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.RuleVersion
	if err := db.Where("rule_id = ?", strings.TrimSpace(ruleID)).Order("version asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query rule history")
	}
	if len(rows) == 0 {
		return nil, ports.ErrRuleNotFound
	}
	return mapRules(rows), nil
}

func (s *Store) SaveRuleVersion(ctx context.Context, def quality.RuleDefinition, createdBy string, at time.Time) (ports.RuleVersion, error) {
	ruleID := strings.TrimSpace(def.ID)
	if ruleID == "" {
		return ports.RuleVersion{}, errors.New("rule id is required")
	}
	at = at.UTC()

	var saved model.RuleVersion
	err := s.inTx(ctx, func(db *gorm.DB) error {
		var latest int
		if err := db.Model(&model.RuleVersion{}).
			Where("rule_id = ?", ruleID).
			Select("COALESCE(MAX(version), 0)").
			Scan(&latest).Error; err != nil {
			return errs.Wrap(err, "query latest rule version")
		}

		if err := db.Model(&model.RuleVersion{}).
			Where("rule_id = ? AND superseded_at IS NULL", ruleID).
			Update("superseded_at", &at).Error; err != nil {
			return errs.Wrap(err, "supersede rule")
		}

		def.ID = ruleID
		def.Version = latest + 1
		saved = model.RuleVersion{
			RuleID:     ruleID,
			Version:    def.Version,
			RuleType:   string(def.Type),
			Priority:   def.Priority,
			Active:     def.IsActive(),
			Definition: datatypes.NewJSONType(def),
			CreatedBy:  createdBy,
			CreatedAt:  at,
		}
		if err := db.Create(&saved).Error; err != nil {
			if isUniqueViolation(err) {
				return errs.Mark(errs.Wrapf(err, "insert rule %s v%d", ruleID, def.Version), ports.ErrStaleWrite)
			}
			return errs.Wrap(err, "insert rule version")
		}
		return nil
	})
	if err != nil {
		return ports.RuleVersion{}, err
	}
	return mapRule(saved), nil
}

func (s *Store) LatestEngineConfig(ctx context.Context) (ports.EngineConfigVersion, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return ports.EngineConfigVersion{}, err
	}

	var row model.EngineConfigVersion
	if err := db.Order("version desc").Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.EngineConfigVersion{}, ports.ErrConfigNotFound
		}
		return ports.EngineConfigVersion{}, errs.Wrap(err, "query engine config")
	}
	return mapEngineConfig(row), nil
}

func (s *Store) GetEngineConfig(ctx context.Context, version int) (ports.EngineConfigVersion, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return ports.EngineConfigVersion{}, err
	}

	var row model.EngineConfigVersion
	if err := db.Where("version = ?", version).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.EngineConfigVersion{}, ports.ErrConfigNotFound
		}
		return ports.EngineConfigVersion{}, errs.Wrap(err, "query engine config")
	}
	return mapEngineConfig(row), nil
}

func (s *Store) ListEngineConfigs(ctx context.Context, limit int) ([]ports.EngineConfigVersion, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.EngineConfigVersion{}).Order("version desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.EngineConfigVersion
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query engine configs")
	}

	items := make([]ports.EngineConfigVersion, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapEngineConfig(row))
	}
	return items, nil
}

func (s *Store) AppendEngineConfig(ctx context.Context, version ports.EngineConfigVersion) error {
	row := model.EngineConfigVersion{
		Version:   version.Config.Version,
		Config:    datatypes.NewJSONType(version.Config),
		CreatedBy: version.CreatedBy,
		Reason:    version.Reason,
		CreatedAt: version.CreatedAt.UTC(),
	}

	return s.inTx(ctx, func(db *gorm.DB) error {
		var latest int
		if err := db.Model(&model.EngineConfigVersion{}).
			Select("COALESCE(MAX(version), 0)").
			Scan(&latest).Error; err != nil {
			return errs.Wrap(err, "query latest engine config")
		}
		if row.Version != latest+1 {
			return errs.Wrapf(ports.ErrStaleWrite, "engine config v%d does not follow v%d", row.Version, latest)
		}
		if err := db.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return errs.Mark(errs.Wrapf(err, "insert engine config v%d", row.Version), ports.ErrStaleWrite)
			}
			return errs.Wrap(err, "insert engine config")
		}
		return nil
	})
}

func mapRule(row model.RuleVersion) ports.RuleVersion {
	return ports.RuleVersion{
		RowID:        row.RowID,
		Definition:   row.Definition.Data(),
		CreatedBy:    row.CreatedBy,
		CreatedAt:    row.CreatedAt,
		SupersededAt: row.SupersededAt,
	}
}

func mapRules(rows []model.RuleVersion) []ports.RuleVersion {
	items := make([]ports.RuleVersion, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapRule(row))
	}
	return items
}

func mapEngineConfig(row model.EngineConfigVersion) ports.EngineConfigVersion {
	return ports.EngineConfigVersion{
		Config:    row.Config.Data(),
		CreatedBy: row.CreatedBy,
		Reason:    row.Reason,
		CreatedAt: row.CreatedAt,
	}
}
