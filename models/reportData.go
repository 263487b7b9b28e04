package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/fincalc_backend/config"
	"bitbucket.org/mmdatafocus/fincalc_backend/reports"
	"bitbucket.org/mmdatafocus/fincalc_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReportData is one stored report fact. Facts are versioned by snapshot:
// a change appends a fresh row unless only-actual-data mode is on, and the
// history migration later archives superseded versions.
type ReportData struct {
	ID                    int              `gorm:"primary_key" json:"id"`
	Name                  string           `gorm:"size:200;not null" json:"name"`
	DataTypeId            int              `gorm:"index:idx_data_identity;not null" json:"data_type_id"`
	PeriodId              *int             `gorm:"index:idx_data_identity" json:"period_id"`
	IndexId               *int             `gorm:"index:idx_data_identity" json:"index_id"`
	ItemId                *int             `gorm:"index:idx_data_identity" json:"item_id"`
	FrcId                 int              `gorm:"index:idx_data_identity;not null" json:"frc_id"`
	AllocationLevelId     *int             `gorm:"index:idx_data_identity" json:"allocation_level_id"`
	AffiliatedFrcId       *int             `gorm:"index:idx_data_identity" json:"affiliated_frc_id"`
	OriginalCurrencyId    *int             `gorm:"index" json:"original_currency_id"`
	SumInOriginalCurrency *decimal.Decimal `gorm:"type:decimal(20,4)" json:"sum_in_original_currency"`
	SumInUsd              *decimal.Decimal `gorm:"type:decimal(20,4)" json:"sum_in_usd"`
	IndexItemCode         int              `json:"index_item_code"`
	Comments              string           `gorm:"type:text" json:"comments"`
	Snapshot              time.Time        `gorm:"index;not null" json:"snapshot"`
	CreatedAt             time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ReportData) TableName() string { return "report_data" }

// ChangeDataOptions controls how a fact change is recorded.
type ChangeDataOptions struct {
	// Persist writes the fact to the database. When false the change only
	// exists in the in-memory container of the running calculation.
	Persist bool
	// QueueChange appends the stored fact to the change queue so a later
	// calculator run picks it up.
	QueueChange bool
	// CalculatorId names the queue partition for QueueChange.
	CalculatorId string
}

// ReportService stores and loads report facts, converting between rows and
// the in-memory fact representation.
type ReportService struct {
	refs *ReferenceService
}

func NewReportService(refs *ReferenceService) *ReportService {
	return &ReportService{refs: refs}
}

// GetDataList loads the facts of one data type and period. Zero dataTypeId
// loads everything; zero periodId with a set dataTypeId loads the facts
// without a period.
func (s *ReportService) GetDataList(ctx context.Context, dataTypeId int, periodId int) ([]reports.Data, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).Model(&ReportData{})
	if dataTypeId > 0 {
		query = query.Where("data_type_id = ?", dataTypeId)
		if periodId > 0 {
			query = query.Where("period_id = ?", periodId)
		} else {
			query = query.Where("period_id IS NULL")
		}
	}

	var rows []*ReportData
	if err := query.Order("snapshot ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	dataList := make([]reports.Data, 0, len(rows))
	for _, row := range rows {
		data, err := s.DataFromRow(ctx, row)
		if err != nil {
			return nil, err
		}
		dataList = append(dataList, data)
	}
	return dataList, nil
}

// GetDataByData finds the stored row matching the fact's identity
// dimensions, latest snapshot first.
func (s *ReportService) GetDataByData(ctx context.Context, tx *gorm.DB, d reports.Data) (*ReportData, error) {
	if tx == nil {
		tx = config.GetDB()
	}

	query := tx.WithContext(ctx).Model(&ReportData{}).
		Where("data_type_id = ?", dimensionId(d.DataType())).
		Where("frc_id = ?", dimensionId(d.Frc()))
	query = whereNullableId(query, "period_id", nullableDimensionId(d.Period()))
	query = whereNullableId(query, "index_id", nullableDimensionId(d.Index()))
	query = whereNullableId(query, "item_id", nullableDimensionId(d.Item()))
	query = whereNullableId(query, "allocation_level_id", nullableDimensionId(d.AllocationLevel()))
	query = whereNullableId(query, "affiliated_frc_id", nullableDimensionId(d.AffiliatedFrc()))

	var row ReportData
	err := query.Order("snapshot DESC, id DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ChangeData records one changed fact. The snapshot is stamped server-side
// so queue ordering follows the write order.
func (s *ReportService) ChangeData(ctx context.Context, tx *gorm.DB, d reports.Data, opts ChangeDataOptions) (reports.Data, error) {
	d = d.WithSnapshot(time.Now())
	if !opts.Persist {
		return d, nil
	}
	if tx == nil {
		tx = config.GetDB()
	}

	row := s.rowFromData(d)
	existing, err := s.GetDataByData(ctx, tx, d)
	if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
		return d, err
	}

	if existing != nil && config.OnlyActualDataMode() {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		if err := tx.WithContext(ctx).Save(row).Error; err != nil {
			return d, err
		}
	} else {
		if err := tx.WithContext(ctx).Create(row).Error; err != nil {
			return d, err
		}
	}

	if opts.QueueChange {
		change := DataChange{
			DataId:       row.ID,
			CalculatorId: opts.CalculatorId,
			Status:       ChangeStatusNew,
			Snapshot:     row.Snapshot,
		}
		if err := tx.WithContext(ctx).Create(&change).Error; err != nil {
			return d, err
		}
	}
	return d, nil
}

func (s *ReportService) rowFromData(d reports.Data) *ReportData {
	row := &ReportData{
		Name:       d.Name(),
		DataTypeId: dimensionId(d.DataType()),
		FrcId:      dimensionId(d.Frc()),
		PeriodId:   nullableDimensionId(d.Period()),
		IndexId:    nullableDimensionId(d.Index()),
		ItemId:     nullableDimensionId(d.Item()),

		AllocationLevelId: nullableDimensionId(d.AllocationLevel()),
		AffiliatedFrcId:   nullableDimensionId(d.AffiliatedFrc()),

		OriginalCurrencyId: nullableDimensionId(d.OriginalCurrency()),
		IndexItemCode:      d.IndexItemCode(),
		Comments:           d.Comments(),
		Snapshot:           d.Snapshot(),
	}
	if sum := d.SumInUsd(); sum != nil {
		v := decimal.NewFromFloat(*sum)
		row.SumInUsd = &v
	}
	if sum := d.SumInOriginalCurrency(); sum != nil {
		v := decimal.NewFromFloat(*sum)
		row.SumInOriginalCurrency = &v
	}
	return row
}

func (s *ReportService) DataFromRow(ctx context.Context, row *ReportData) (reports.Data, error) {
	fields := reports.DataFields{
		Id:            row.ID,
		Name:          row.Name,
		Comments:      row.Comments,
		Snapshot:      row.Snapshot,
		IndexItemCode: row.IndexItemCode,
	}

	dataType, err := s.refs.DataTypeById(ctx, row.DataTypeId)
	if err != nil {
		return reports.Data{}, err
	}
	fields.DataType = dataType

	frc, err := s.refs.FrcById(ctx, row.FrcId)
	if err != nil {
		return reports.Data{}, err
	}
	fields.Frc = frc

	if row.PeriodId != nil {
		if fields.Period, err = s.refs.PeriodById(ctx, *row.PeriodId); err != nil {
			return reports.Data{}, err
		}
	}
	if row.IndexId != nil {
		if fields.Index, err = s.refs.IndexById(ctx, *row.IndexId); err != nil {
			return reports.Data{}, err
		}
	}
	if row.ItemId != nil {
		if fields.Item, err = s.refs.ItemById(ctx, *row.ItemId); err != nil {
			return reports.Data{}, err
		}
	}
	if row.AllocationLevelId != nil {
		if fields.AllocationLevel, err = s.refs.ItemById(ctx, *row.AllocationLevelId); err != nil {
			return reports.Data{}, err
		}
	}
	if row.AffiliatedFrcId != nil {
		if fields.AffiliatedFrc, err = s.refs.FrcById(ctx, *row.AffiliatedFrcId); err != nil {
			return reports.Data{}, err
		}
	}
	if row.OriginalCurrencyId != nil {
		if fields.OriginalCurrency, err = s.refs.CurrencyById(ctx, *row.OriginalCurrencyId); err != nil {
			return reports.Data{}, err
		}
	}
	if row.SumInUsd != nil {
		fields.SumInUsd = utils.FloatPtr(row.SumInUsd.InexactFloat64())
	}
	if row.SumInOriginalCurrency != nil {
		fields.SumInOriginalCurrency = utils.FloatPtr(row.SumInOriginalCurrency.InexactFloat64())
	}

	return reports.NewData(fields), nil
}

func dimensionId(v reports.HierarchyValue) int {
	if v == nil {
		return 0
	}
	return v.ValueId()
}

func nullableDimensionId[T any, P interface {
	*T
	reports.HierarchyValue
}](v P) *int {
	if v == nil {
		return nil
	}
	id := v.ValueId()
	return &id
}

func whereNullableId(query *gorm.DB, column string, id *int) *gorm.DB {
	if id == nil {
		return query.Where(column + " IS NULL")
	}
	return query.Where(column+" = ?", *id)
}
