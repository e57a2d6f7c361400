package repositories

import (
	"time"

	"github.com/pockpet/social/internal/models"
	"github.com/pockpet/social/pkg/errors"
	"gorm.io/gorm"
)

type GameRepository struct {
	db *gorm.DB
}

func NewGameRepository(db *gorm.DB) *GameRepository {
	return &GameRepository{db: db}
}

// CreateSession stores a new game session record
func (r *GameRepository) CreateSession(session *models.GameSessionRecord) error {
	if err := r.db.Create(session).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create game session")
	}
	return nil
}

// GetSession retrieves a session by its ID
func (r *GameRepository) GetSession(sessionID string) (*models.GameSessionRecord, error) {
	var session models.GameSessionRecord
	result := r.db.Where("session_id = ?", sessionID).First(&session)
	if result.Error == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, "game session not found")
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get game session")
	}
	return &session, nil
}

// UpdateStatus transitions a session's lifecycle status
func (r *GameRepository) UpdateStatus(sessionID, status string) error {
	result := r.db.Model(&models.GameSessionRecord{}).
		Where("session_id = ?", sessionID).
		Update("status", status)
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to update game session")
	}
	if result.RowsAffected == 0 {
		return errors.New(errors.ErrCodeNotFound, "game session not found")
	}
	return nil
}

// UpdateState persists the engine's serialized state for a session
func (r *GameRepository) UpdateState(sessionID, state string) error {
	result := r.db.Model(&models.GameSessionRecord{}).
		Where("session_id = ?", sessionID).
		Update("state", state)
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to update game state")
	}
	if result.RowsAffected == 0 {
		return errors.New(errors.ErrCodeNotFound, "game session not found")
	}
	return nil
}

// FinishSession records the terminal status and winner of a session
func (r *GameRepository) FinishSession(sessionID, status, winner string, endedAt time.Time) error {
	result := r.db.Model(&models.GameSessionRecord{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"status":   status,
			"winner":   winner,
			"ended_at": endedAt,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to finish game session")
	}
	if result.RowsAffected == 0 {
		return errors.New(errors.ErrCodeNotFound, "game session not found")
	}
	return nil
}

// GetHistory retrieves the most recent finished sessions, newest first
func (r *GameRepository) GetHistory(limit int) ([]models.GameSessionRecord, error) {
	var sessions []models.GameSessionRecord
	err := r.db.Where("status IN ?", []string{
		models.GameStatusCompleted,
		models.GameStatusForfeited,
	}).
		Order("started_at desc").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get game history")
	}
	return sessions, nil
}

// GetStats returns win/loss/draw counts against all peers. Winner holds
// the winning device name, empty for a draw.
func (r *GameRepository) GetStats(selfDevice string) (wins, losses, draws int64, err error) {
	base := func() *gorm.DB {
		return r.db.Model(&models.GameSessionRecord{}).
			Where("status IN ?", []string{models.GameStatusCompleted, models.GameStatusForfeited})
	}

	if e := base().Where("winner = ?", selfDevice).Count(&wins).Error; e != nil {
		return 0, 0, 0, errors.Wrap(e, errors.ErrCodeInternalError, "failed to count wins")
	}
	if e := base().Where("winner != ? AND winner != ''", selfDevice).Count(&losses).Error; e != nil {
		return 0, 0, 0, errors.Wrap(e, errors.ErrCodeInternalError, "failed to count losses")
	}
	if e := base().Where("winner = ''").Count(&draws).Error; e != nil {
		return 0, 0, 0, errors.Wrap(e, errors.ErrCodeInternalError, "failed to count draws")
	}

	return wins, losses, draws, nil
}
