package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/fincalc_backend/config"
	"bitbucket.org/mmdatafocus/fincalc_backend/reports"
	"gorm.io/gorm"
)

// DataChange is one queued fact change. Changes are partitioned by
// calculator run id and processed oldest snapshot first.
type DataChange struct {
	ID           int          `gorm:"primary_key" json:"id"`
	DataId       int          `gorm:"index;not null" json:"data_id"`
	CalculatorId string       `gorm:"size:36;index;not null" json:"calculator_id"`
	Status       ChangeStatus `gorm:"type:enum('NEW','PENDING','SUCCESS','FAILURE');not null;default:'NEW'" json:"status"`
	ErrorMessage string       `gorm:"type:text" json:"error_message"`
	Snapshot     time.Time    `gorm:"index;not null" json:"snapshot"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DataChange) TableName() string { return "report_data_changes" }

// CalculationChange is a queued change hydrated with its report fact.
type CalculationChange struct {
	Change DataChange
	Data   reports.Data
}

// DataChangeService manages the change queue.
type DataChangeService struct {
	reports *ReportService
}

func NewDataChangeService(reports *ReportService) *DataChangeService {
	return &DataChangeService{reports: reports}
}

// CalculationReadyList loads the changes a calculator run still has to
// process, oldest first. Failed changes are retried.
func (s *DataChangeService) CalculationReadyList(ctx context.Context, calculatorId string) ([]CalculationChange, error) {
	db := config.GetDB()

	var changeRows []DataChange
	err := db.WithContext(ctx).
		Where("calculator_id = ? AND status IN ?", calculatorId, []ChangeStatus{ChangeStatusNew, ChangeStatusFailure}).
		Order("snapshot ASC, id ASC").
		Find(&changeRows).Error
	if err != nil {
		return nil, err
	}

	changes := make([]CalculationChange, 0, len(changeRows))
	for _, changeRow := range changeRows {
		var dataRow ReportData
		if err := db.WithContext(ctx).First(&dataRow, changeRow.DataId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		data, err := s.reports.DataFromRow(ctx, &dataRow)
		if err != nil {
			return nil, err
		}
		changes = append(changes, CalculationChange{Change: changeRow, Data: data})
	}
	return changes, nil
}

// CalculatorChangeList loads every change of one calculator run.
func (s *DataChangeService) CalculatorChangeList(ctx context.Context, calculatorId string) ([]DataChange, error) {
	var rows []DataChange
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("calculator_id = ?", calculatorId).
		Order("snapshot ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateChangeStatus moves the listed changes to the given status.
func (s *DataChangeService) UpdateChangeStatus(ctx context.Context, tx *gorm.DB, changeIds []int, status ChangeStatus, errorMessage string) error {
	if len(changeIds) == 0 {
		return nil
	}
	if tx == nil {
		tx = config.GetDB()
	}
	return tx.WithContext(ctx).Model(&DataChange{}).
		Where("id IN ?", changeIds).
		Updates(map[string]interface{}{
			"Status":       status,
			"ErrorMessage": errorMessage,
		}).Error
}

// AggregateCalculatorStatus folds the statuses of one calculator run into
// the status reported to the caller. A run with both finished and waiting
// changes is still pending.
func AggregateCalculatorStatus(changes []DataChange) (ChangeStatus, string, error) {
	if len(changes) == 0 {
		return ChangeStatusUndefined, "", nil
	}

	counts := make(map[ChangeStatus]int, 4)
	errorMessage := ""
	for _, change := range changes {
		counts[change.Status]++
		if change.Status == ChangeStatusFailure && errorMessage == "" {
			errorMessage = change.ErrorMessage
		}
	}

	switch {
	case counts[ChangeStatusFailure] > 0:
		return ChangeStatusFailure, errorMessage, nil
	case counts[ChangeStatusPending] > 0:
		return ChangeStatusPending, "", nil
	case counts[ChangeStatusSuccess] == len(changes):
		return ChangeStatusSuccess, "", nil
	case counts[ChangeStatusNew] == len(changes):
		return ChangeStatusNew, "", nil
	case counts[ChangeStatusSuccess]+counts[ChangeStatusNew] == len(changes):
		return ChangeStatusPending, "", nil
	}
	return ChangeStatusUndefined, "", errors.New("unexpected calculator instance state")
}
