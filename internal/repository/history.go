package repository

import (
	"mirrord/internal/db"
	"mirrord/internal/model"
	"time"
)

type HistoryRepository struct{}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{}
}

func (r *HistoryRepository) Save(source string, result model.SyncResult) error {
	status := model.StatusSuccess
	errMsg := ""
	if result.Err != nil {
		status = model.StatusFailed
		errMsg = result.Err.Error()
	}

	fileEvent := string(result.Event.Type)
	if fileEvent == "" {
		fileEvent = "RECONCILE"
	}

	history := model.History{
		Status:    status,
		Operation: result.Op,
		FileEvent: fileEvent,
		Source:    source,
		SrcPath:   result.SrcPath,
		DstPath:   result.DstPath,
		ErrMsg:    errMsg,
		SyncedAt:  time.Now(),
	}

	return db.DB.Create(&history).Error
}

type Stats struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
}

func (r *HistoryRepository) GetStats() (Stats, error) {
	var stats Stats
	if err := db.DB.Model(&model.History{}).Count(&stats.Total).Error; err != nil {
		return stats, err
	}

	if err := db.DB.Model(&model.History{}).
		Where("status = ?", model.StatusSuccess).
		Count(&stats.Success).Error; err != nil {
		return stats, err
	}

	stats.Failed = stats.Total - stats.Success
	return stats, nil
}

// Filter selects history rows, newest first. Zero values select everything.
type Filter struct {
	Source     string
	FailedOnly bool
	Limit      int
}

func (r *HistoryRepository) Find(f Filter) ([]model.History, error) {
	query := db.DB.Model(&model.History{})
	if f.Source != "" {
		query = query.Where("source = ?", f.Source)
	}
	if f.FailedOnly {
		query = query.Where("status = ?", model.StatusFailed)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}

	var histories []model.History
	result := query.
		Order("synced_at desc").
		Order("id desc").
		Find(&histories)

	return histories, result.Error
}

// Prune deletes rows recorded before cutoff and returns how many were removed.
func (r *HistoryRepository) Prune(cutoff time.Time) (int64, error) {
	result := db.DB.
		Unscoped().
		Where("synced_at < ?", cutoff).
		Delete(&model.History{})

	return result.RowsAffected, result.Error
}
