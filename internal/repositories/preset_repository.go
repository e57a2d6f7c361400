package repositories

import (
	"github.com/pockpet/social/internal/models"
	"github.com/pockpet/social/pkg/errors"
	"gorm.io/gorm"
)

type PresetRepository struct {
	db *gorm.DB
}

func NewPresetRepository(db *gorm.DB) *PresetRepository {
	return &PresetRepository{db: db}
}

// List returns all preset phrases in display order
func (r *PresetRepository) List() ([]models.PresetPhrase, error) {
	var presets []models.PresetPhrase
	err := r.db.Order("sort_order asc, id asc").Find(&presets).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to list presets")
	}
	return presets, nil
}

// Get retrieves one preset by ID
func (r *PresetRepository) Get(id uint) (*models.PresetPhrase, error) {
	var preset models.PresetPhrase
	result := r.db.First(&preset, id)
	if result.Error == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, "preset not found")
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get preset")
	}
	return &preset, nil
}

// Upsert inserts a preset unless the text already exists
func (r *PresetRepository) Upsert(preset *models.PresetPhrase) (bool, error) {
	var existing models.PresetPhrase
	result := r.db.Where("text = ?", preset.Text).First(&existing)
	if result.Error == nil {
		return false, nil
	}
	if result.Error != gorm.ErrRecordNotFound {
		return false, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to check preset")
	}

	if err := r.db.Create(preset).Error; err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternalError, "failed to create preset")
	}
	return true, nil
}
