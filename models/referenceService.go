package models

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/fincalc_backend/config"
	"bitbucket.org/mmdatafocus/fincalc_backend/reports"
	"bitbucket.org/mmdatafocus/fincalc_backend/utils"
	"gorm.io/gorm"
)

const referenceCacheTTL = 10 * time.Minute

var referenceCacheKeys = []string{
	"fincalc:refs:dataTypes",
	"fincalc:refs:periods",
	"fincalc:refs:frcs",
	"fincalc:refs:indexes",
	"fincalc:refs:items",
	"fincalc:refs:parameterFrcs",
	"fincalc:refs:parameterSections",
	"fincalc:refs:originalCurrencies",
	"fincalc:refs:currencyRates",
}

// ReferenceService loads the reference catalogs and converts them into the
// in-memory entities the calculation engine works with. Catalogs are
// loaded once per service instance; a fresh instance is created per
// calculation run so reference edits apply between runs, not during one.
type ReferenceService struct {
	mu sync.Mutex

	dataTypes          map[int]*reports.DataType
	periods            map[int]*reports.Period
	frcs               map[int]*reports.Frc
	indexes            map[int]*reports.Index
	items              map[int]*reports.Item
	originalCurrencies map[int]*reports.OriginalCurrency
	currencies         map[int]*reports.Currency
	allocationLevels   map[reports.AllocationLevel]*reports.Item
	expenseRequests    map[int][]*reports.ExpenseRequest
}

func NewReferenceService() *ReferenceService {
	return &ReferenceService{expenseRequests: make(map[int][]*reports.ExpenseRequest)}
}

// InvalidateReferenceCache drops the redis copies of the reference
// catalogs. Called after reference table edits.
func InvalidateReferenceCache() error {
	return config.RemoveRedisKey(referenceCacheKeys...)
}

// loadReferenceRows reads one catalog through the redis cache.
func loadReferenceRows[T any](ctx context.Context, cacheKey string, load func(db *gorm.DB) ([]T, error)) ([]T, error) {
	var rows []T
	if found, err := config.GetRedisObject(cacheKey, &rows); err == nil && found {
		return rows, nil
	}

	rows, err := load(config.GetDB().WithContext(ctx))
	if err != nil {
		return nil, err
	}
	if err := config.SetRedisObject(cacheKey, rows, referenceCacheTTL); err != nil {
		config.LogError(config.GetLogger(), "models", "loadReferenceRows", cacheKey, nil, err)
	}
	return rows, nil
}

func (s *ReferenceService) DataTypeList(ctx context.Context) (map[int]*reports.DataType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureDataTypes(ctx); err != nil {
		return nil, err
	}
	return s.dataTypes, nil
}

func (s *ReferenceService) DataTypeById(ctx context.Context, id int) (*reports.DataType, error) {
	list, err := s.DataTypeList(ctx)
	if err != nil {
		return nil, err
	}
	dataType, ok := list[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return dataType, nil
}

// DataTypeByName resolves a data type by its unique name.
func (s *ReferenceService) DataTypeByName(ctx context.Context, name string) (*reports.DataType, error) {
	list, err := s.DataTypeList(ctx)
	if err != nil {
		return nil, err
	}
	for _, dataType := range list {
		if dataType.Name == name {
			return dataType, nil
		}
	}
	return nil, utils.ErrorRecordNotFound
}

func (s *ReferenceService) PeriodList(ctx context.Context) (map[int]*reports.Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensurePeriods(ctx); err != nil {
		return nil, err
	}
	return s.periods, nil
}

func (s *ReferenceService) PeriodById(ctx context.Context, id int) (*reports.Period, error) {
	list, err := s.PeriodList(ctx)
	if err != nil {
		return nil, err
	}
	period, ok := list[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return period, nil
}

func (s *ReferenceService) FrcList(ctx context.Context) (map[int]*reports.Frc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureFrcs(ctx); err != nil {
		return nil, err
	}
	return s.frcs, nil
}

func (s *ReferenceService) FrcById(ctx context.Context, id int) (*reports.Frc, error) {
	list, err := s.FrcList(ctx)
	if err != nil {
		return nil, err
	}
	frc, ok := list[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return frc, nil
}

// ParentFrc resolves the parent of a center. Roots have no parent and
// resolve to ErrorRecordNotFound.
func (s *ReferenceService) ParentFrc(ctx context.Context, frc *reports.Frc) (*reports.Frc, error) {
	if frc == nil || frc.IsRoot() {
		return nil, utils.ErrorRecordNotFound
	}
	return s.FrcById(ctx, frc.ParentId)
}

func (s *ReferenceService) IndexList(ctx context.Context) (map[int]*reports.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureParameters(ctx); err != nil {
		return nil, err
	}
	return s.indexes, nil
}

func (s *ReferenceService) IndexById(ctx context.Context, id int) (*reports.Index, error) {
	list, err := s.IndexList(ctx)
	if err != nil {
		return nil, err
	}
	index, ok := list[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return index, nil
}

func (s *ReferenceService) ItemList(ctx context.Context) (map[int]*reports.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureParameters(ctx); err != nil {
		return nil, err
	}
	return s.items, nil
}

func (s *ReferenceService) ItemById(ctx context.Context, id int) (*reports.Item, error) {
	list, err := s.ItemList(ctx)
	if err != nil {
		return nil, err
	}
	item, ok := list[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return item, nil
}

// AllocationLevelList maps the allocation cascade levels to their marker
// items.
func (s *ReferenceService) AllocationLevelList(ctx context.Context) (map[reports.AllocationLevel]*reports.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureParameters(ctx); err != nil {
		return nil, err
	}
	return s.allocationLevels, nil
}

func (s *ReferenceService) OriginalCurrencyById(ctx context.Context, id int) (*reports.OriginalCurrency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureCurrencies(ctx); err != nil {
		return nil, err
	}
	currency, ok := s.originalCurrencies[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return currency, nil
}

func (s *ReferenceService) CurrencyById(ctx context.Context, id int) (*reports.Currency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureCurrencies(ctx); err != nil {
		return nil, err
	}
	currency, ok := s.currencies[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return currency, nil
}

// ExpenseRequestList loads the approved expense requests of one period.
func (s *ReferenceService) ExpenseRequestList(ctx context.Context, period *reports.Period) ([]*reports.ExpenseRequest, error) {
	if period == nil {
		return nil, nil
	}

	s.mu.Lock()
	if requests, ok := s.expenseRequests[period.Id]; ok {
		s.mu.Unlock()
		return requests, nil
	}
	s.mu.Unlock()

	var rows []*ExpenseRequest
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("period_id = ? AND status = ?", period.Id, ExpenseRequestStatusApproved).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	requests := make([]*reports.ExpenseRequest, 0, len(rows))
	for _, row := range rows {
		request, err := s.expenseRequestFromRow(ctx, row, period)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}

	s.mu.Lock()
	s.expenseRequests[period.Id] = requests
	s.mu.Unlock()
	return requests, nil
}

func (s *ReferenceService) expenseRequestFromRow(ctx context.Context, row *ExpenseRequest, period *reports.Period) (*reports.ExpenseRequest, error) {
	request := &reports.ExpenseRequest{
		Id:     row.ID,
		Name:   row.Name,
		Period: period,
	}

	frc, err := s.FrcById(ctx, row.FrcId)
	if err != nil {
		return nil, fmt.Errorf("expense request %d: %w", row.ID, err)
	}
	request.Frc = frc

	if row.ItemId != nil {
		if request.Item, err = s.ItemById(ctx, *row.ItemId); err != nil {
			return nil, fmt.Errorf("expense request %d: %w", row.ID, err)
		}
	}
	if row.CurrencyRateId != nil {
		if request.Currency, err = s.CurrencyById(ctx, *row.CurrencyRateId); err != nil {
			return nil, fmt.Errorf("expense request %d: %w", row.ID, err)
		}
	}
	if row.AmountWithoutTaxesUsd != nil {
		request.AmountWithoutTaxesUsd = utils.FloatPtr(row.AmountWithoutTaxesUsd.InexactFloat64())
	}
	if row.AmountInOriginalCurrency != nil {
		request.AmountInOriginalCurrency = utils.FloatPtr(row.AmountInOriginalCurrency.InexactFloat64())
	}
	return request, nil
}

func (s *ReferenceService) ensureDataTypes(ctx context.Context) error {
	if s.dataTypes != nil {
		return nil
	}
	rows, err := loadReferenceRows(ctx, "fincalc:refs:dataTypes", func(db *gorm.DB) ([]*DataType, error) {
		var rows []*DataType
		return rows, db.Order("id ASC").Find(&rows).Error
	})
	if err != nil {
		return err
	}

	s.dataTypes = make(map[int]*reports.DataType, len(rows))
	for _, row := range rows {
		s.dataTypes[row.ID] = &reports.DataType{Id: row.ID, Name: row.Name}
	}
	return nil
}

func (s *ReferenceService) ensurePeriods(ctx context.Context) error {
	if s.periods != nil {
		return nil
	}
	rows, err := loadReferenceRows(ctx, "fincalc:refs:periods", func(db *gorm.DB) ([]*Period, error) {
		var rows []*Period
		return rows, db.Order("start_date ASC, id ASC").Find(&rows).Error
	})
	if err != nil {
		return err
	}

	s.periods = make(map[int]*reports.Period, len(rows))
	for _, row := range rows {
		period := &reports.Period{
			Id:     row.ID,
			Name:   row.Name,
			Type:   row.PeriodType,
			IsOpen: row.IsOpen != nil && *row.IsOpen,
			Start:  row.StartDate,
			End:    row.EndDate,
		}
		if row.AliSysRate != nil {
			period.AliSys = row.AliSysRate.InexactFloat64()
		}
		if row.AliWebRate != nil {
			period.AliWeb = row.AliWebRate.InexactFloat64()
		}
		s.periods[row.ID] = period
	}
	return nil
}

// ensureFrcs loads the centers and links the two rollup trees: every
// parent holds its green and red children separately.
func (s *ReferenceService) ensureFrcs(ctx context.Context) error {
	if s.frcs != nil {
		return nil
	}
	rows, err := loadReferenceRows(ctx, "fincalc:refs:frcs", func(db *gorm.DB) ([]*Frc, error) {
		var rows []*Frc
		return rows, db.Order("id ASC").Find(&rows).Error
	})
	if err != nil {
		return err
	}

	s.frcs = make(map[int]*reports.Frc, len(rows))
	for _, row := range rows {
		frc := &reports.Frc{
			Id:    row.ID,
			Name:  row.Name,
			Level: row.Level,
		}
		switch row.Color {
		case FrcColorGreen:
			frc.Color = reports.FrcColorGreen
		case FrcColorRed:
			frc.Color = reports.FrcColorRed
		}
		if row.ParentFrcId != nil {
			frc.ParentId = *row.ParentFrcId
		}
		s.frcs[row.ID] = frc
	}

	for _, row := range rows {
		frc := s.frcs[row.ID]
		if frc.ParentId == 0 {
			continue
		}
		parent, ok := s.frcs[frc.ParentId]
		if !ok {
			continue
		}
		switch frc.Color {
		case reports.FrcColorGreen:
			parent.ChildGreenFrc = append(parent.ChildGreenFrc, frc)
		case reports.FrcColorRed:
			parent.ChildRedFrc = append(parent.ChildRedFrc, frc)
		}
	}
	return nil
}

func (s *ReferenceService) ensureParameters(ctx context.Context) error {
	if s.indexes != nil && s.items != nil {
		return nil
	}

	indexRows, err := loadReferenceRows(ctx, "fincalc:refs:indexes", func(db *gorm.DB) ([]*ReportIndex, error) {
		var rows []*ReportIndex
		return rows, db.Order("id ASC").Find(&rows).Error
	})
	if err != nil {
		return err
	}
	itemRows, err := loadReferenceRows(ctx, "fincalc:refs:items", func(db *gorm.DB) ([]*ReportItem, error) {
		var rows []*ReportItem
		return rows, db.Order("id ASC").Find(&rows).Error
	})
	if err != nil {
		return err
	}
	frcJoins, err := loadReferenceRows(ctx, "fincalc:refs:parameterFrcs", func(db *gorm.DB) ([]*ParameterFrc, error) {
		var rows []*ParameterFrc
		return rows, db.Order("id ASC").Find(&rows).Error
	})
	if err != nil {
		return err
	}
	sectionJoins, err := loadReferenceRows(ctx, "fincalc:refs:parameterSections", func(db *gorm.DB) ([]*ParameterSection, error) {
		var rows []*ParameterSection
		return rows, db.Order("id ASC").Find(&rows).Error
	})
	if err != nil {
		return err
	}

	frcIds := make(map[ParameterType]map[int][]int)
	for _, join := range frcJoins {
		if frcIds[join.ParameterType] == nil {
			frcIds[join.ParameterType] = make(map[int][]int)
		}
		frcIds[join.ParameterType][join.ParameterId] = append(frcIds[join.ParameterType][join.ParameterId], join.FrcId)
	}
	sectionIds := make(map[ParameterType]map[int][]int)
	for _, join := range sectionJoins {
		if sectionIds[join.ParameterType] == nil {
			sectionIds[join.ParameterType] = make(map[int][]int)
		}
		sectionIds[join.ParameterType][join.ParameterId] = append(sectionIds[join.ParameterType][join.ParameterId], join.SectionId)
	}

	s.indexes = make(map[int]*reports.Index, len(indexRows))
	for _, row := range indexRows {
		s.indexes[row.ID] = &reports.Index{
			Id:       row.ID,
			Name:     row.Name,
			Code:     row.Code,
			IsActive: row.IsActive != nil && *row.IsActive,
			FrcIds:   frcIds[ParameterTypeIndex][row.ID],
			Sections: sectionIds[ParameterTypeIndex][row.ID],
		}
	}

	s.items = make(map[int]*reports.Item, len(itemRows))
	s.allocationLevels = make(map[reports.AllocationLevel]*reports.Item)
	for _, row := range itemRows {
		item := &reports.Item{
			Id:       row.ID,
			Name:     row.Name,
			Code:     row.Code,
			IsActive: row.IsActive != nil && *row.IsActive,
			FrcIds:   frcIds[ParameterTypeItem][row.ID],
			Sections: sectionIds[ParameterTypeItem][row.ID],
		}
		s.items[row.ID] = item
		if level := item.AllocationIndex(); level != reports.AllocationLevelUndefined {
			s.allocationLevels[level] = item
		}
	}
	return nil
}

func (s *ReferenceService) ensureCurrencies(ctx context.Context) error {
	if s.currencies != nil {
		return nil
	}
	if err := s.ensurePeriods(ctx); err != nil {
		return err
	}

	originalRows, err := loadReferenceRows(ctx, "fincalc:refs:originalCurrencies", func(db *gorm.DB) ([]*OriginalCurrency, error) {
		var rows []*OriginalCurrency
		return rows, db.Order("id ASC").Find(&rows).Error
	})
	if err != nil {
		return err
	}
	rateRows, err := loadReferenceRows(ctx, "fincalc:refs:currencyRates", func(db *gorm.DB) ([]*CurrencyRate, error) {
		var rows []*CurrencyRate
		return rows, db.Order("id ASC").Find(&rows).Error
	})
	if err != nil {
		return err
	}

	s.originalCurrencies = make(map[int]*reports.OriginalCurrency, len(originalRows))
	for _, row := range originalRows {
		s.originalCurrencies[row.ID] = &reports.OriginalCurrency{Id: row.ID, Name: row.Name}
	}

	s.currencies = make(map[int]*reports.Currency, len(rateRows))
	for _, row := range rateRows {
		s.currencies[row.ID] = &reports.Currency{
			Id:               row.ID,
			Name:             row.Name,
			OriginalCurrency: s.originalCurrencies[row.OriginalCurrencyId],
			BudgetRate:       row.BudgetRate.InexactFloat64(),
			MonthlyRate:      row.MonthlyRate.InexactFloat64(),
			Period:           s.periods[row.PeriodId],
		}
	}
	return nil
}
