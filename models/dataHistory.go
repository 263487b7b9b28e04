package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/fincalc_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReportDataHistory is an archived fact version superseded by a fresher
// snapshot of the same identity.
type ReportDataHistory struct {
	ID                    int              `gorm:"primary_key" json:"id"`
	DataId                int              `gorm:"index;not null" json:"data_id"`
	Name                  string           `gorm:"size:200;not null" json:"name"`
	DataTypeId            int              `gorm:"index;not null" json:"data_type_id"`
	PeriodId              *int             `json:"period_id"`
	IndexId               *int             `json:"index_id"`
	ItemId                *int             `json:"item_id"`
	FrcId                 int              `gorm:"index;not null" json:"frc_id"`
	AllocationLevelId     *int             `json:"allocation_level_id"`
	AffiliatedFrcId       *int             `json:"affiliated_frc_id"`
	OriginalCurrencyId    *int             `json:"original_currency_id"`
	SumInOriginalCurrency *decimal.Decimal `gorm:"type:decimal(20,4)" json:"sum_in_original_currency"`
	SumInUsd              *decimal.Decimal `gorm:"type:decimal(20,4)" json:"sum_in_usd"`
	IndexItemCode         int              `json:"index_item_code"`
	Comments              string           `gorm:"type:text" json:"comments"`
	Snapshot              time.Time        `gorm:"index;not null" json:"snapshot"`
	ArchivedAt            time.Time        `gorm:"autoCreateTime" json:"archived_at"`
}

func (ReportDataHistory) TableName() string { return "report_data_history" }

// supersededDataCondition matches every report_data row that has a fresher
// row with the same identity dimensions. NULL-safe comparison keeps the
// optional dimensions aligned.
const supersededDataCondition = `
EXISTS (
	SELECT 1 FROM report_data n
	WHERE n.data_type_id = d.data_type_id
	  AND n.frc_id = d.frc_id
	  AND n.period_id <=> d.period_id
	  AND n.index_id <=> d.index_id
	  AND n.item_id <=> d.item_id
	  AND n.allocation_level_id <=> d.allocation_level_id
	  AND n.affiliated_frc_id <=> d.affiliated_frc_id
	  AND (n.snapshot > d.snapshot OR (n.snapshot = d.snapshot AND n.id > d.id))
)`

// ArchiveSupersededData moves every non-latest fact version into the
// history table. Runs in one transaction so readers never observe a fact
// in both tables.
func ArchiveSupersededData(ctx context.Context) (int64, error) {
	var archived int64
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		insert := tx.Exec(`
INSERT INTO report_data_history (
	data_id, name, data_type_id, period_id, index_id, item_id, frc_id,
	allocation_level_id, affiliated_frc_id, original_currency_id,
	sum_in_original_currency, sum_in_usd, index_item_code, comments,
	snapshot, archived_at
)
SELECT
	d.id, d.name, d.data_type_id, d.period_id, d.index_id, d.item_id, d.frc_id,
	d.allocation_level_id, d.affiliated_frc_id, d.original_currency_id,
	d.sum_in_original_currency, d.sum_in_usd, d.index_item_code, d.comments,
	d.snapshot, NOW()
FROM report_data d
WHERE ` + supersededDataCondition)
		if insert.Error != nil {
			return insert.Error
		}
		archived = insert.RowsAffected

		// MySQL rejects a subquery on the delete target, so the delete
		// side uses a self-join instead of the EXISTS condition.
		return tx.Exec(`
DELETE d FROM report_data d
JOIN report_data n
  ON n.data_type_id = d.data_type_id
 AND n.frc_id = d.frc_id
 AND n.period_id <=> d.period_id
 AND n.index_id <=> d.index_id
 AND n.item_id <=> d.item_id
 AND n.allocation_level_id <=> d.allocation_level_id
 AND n.affiliated_frc_id <=> d.affiliated_frc_id
 AND (n.snapshot > d.snapshot OR (n.snapshot = d.snapshot AND n.id > d.id))`).Error
	})
	if err != nil {
		return 0, err
	}
	return archived, nil
}
