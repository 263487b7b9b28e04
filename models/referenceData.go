package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reference tables are the read-mostly catalogs the calculation engine
// resolves report facts against. They are administered outside of the
// calculation flow, so the engine only ever reads them.

type DataType struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null;uniqueIndex" json:"name" binding:"required"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Period struct {
	ID         int              `gorm:"primary_key" json:"id"`
	Name       string           `gorm:"size:100;not null" json:"name" binding:"required"`
	PeriodType int              `gorm:"not null;default:0" json:"period_type"`
	IsOpen     *bool            `gorm:"not null;default:true" json:"is_open"`
	StartDate  time.Time        `gorm:"index;not null" json:"start_date"`
	EndDate    time.Time        `gorm:"index;not null" json:"end_date"`
	AliSysRate *decimal.Decimal `gorm:"type:decimal(20,6)" json:"ali_sys_rate"`
	AliWebRate *decimal.Decimal `gorm:"type:decimal(20,6)" json:"ali_web_rate"`
	CreatedAt  time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type Frc struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Name        string    `gorm:"size:200;not null" json:"name" binding:"required"`
	Color       FrcColor  `gorm:"type:enum('G','R');not null" json:"color" binding:"required"`
	Level       string    `gorm:"size:2;not null;default:''" json:"level"`
	ParentFrcId *int      `gorm:"index" json:"parent_frc_id"`
	IsActive    *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ReportIndex is a calculated indicator of the report catalog.
type ReportIndex struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:200;not null" json:"name" binding:"required"`
	Code      int       `gorm:"uniqueIndex;not null" json:"code" binding:"required"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ReportIndex) TableName() string { return "report_indexes" }

// ReportItem is an expense/revenue article of the report catalog.
type ReportItem struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:200;not null" json:"name" binding:"required"`
	Code      int       `gorm:"uniqueIndex;not null" json:"code" binding:"required"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ReportItem) TableName() string { return "report_items" }

// Section groups catalog parameters into report blocks (expense and
// revenue halves of the index and item catalogs).
type Section struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:200;not null" json:"name" binding:"required"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ParameterFrc authorizes one FRC for one catalog parameter.
type ParameterFrc struct {
	ID            int           `gorm:"primary_key" json:"id"`
	ParameterId   int           `gorm:"index:idx_parameter_frc;not null" json:"parameter_id"`
	ParameterType ParameterType `gorm:"index:idx_parameter_frc;type:enum('index','item');not null" json:"parameter_type"`
	FrcId         int           `gorm:"index;not null" json:"frc_id"`
}

func (ParameterFrc) TableName() string { return "parameter_frcs" }

// ParameterSection places one catalog parameter into one section.
type ParameterSection struct {
	ID            int           `gorm:"primary_key" json:"id"`
	ParameterId   int           `gorm:"index:idx_parameter_section;not null" json:"parameter_id"`
	ParameterType ParameterType `gorm:"index:idx_parameter_section;type:enum('index','item');not null" json:"parameter_type"`
	SectionId     int           `gorm:"index;not null" json:"section_id"`
}

type OriginalCurrency struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:10;not null;uniqueIndex" json:"name" binding:"required"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OriginalCurrency) TableName() string { return "original_currencies" }

// CurrencyRate binds an original currency to its USD conversion rates for
// one period.
type CurrencyRate struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	Name               string          `gorm:"size:100;not null" json:"name"`
	OriginalCurrencyId int             `gorm:"index;not null" json:"original_currency_id" binding:"required"`
	PeriodId           int             `gorm:"index;not null" json:"period_id" binding:"required"`
	BudgetRate         decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"budget_rate"`
	MonthlyRate        decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"monthly_rate"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ExpenseRequest is an approved expense that is not yet represented by a
// report fact.
type ExpenseRequest struct {
	ID                       int              `gorm:"primary_key" json:"id"`
	Name                     string           `gorm:"size:200;not null" json:"name"`
	FrcId                    int              `gorm:"index;not null" json:"frc_id" binding:"required"`
	ItemId                   *int             `gorm:"index" json:"item_id"`
	PeriodId                 int              `gorm:"index;not null" json:"period_id" binding:"required"`
	AmountWithoutTaxesUsd    *decimal.Decimal `gorm:"type:decimal(20,4)" json:"amount_without_taxes_usd"`
	AmountInOriginalCurrency *decimal.Decimal `gorm:"type:decimal(20,4)" json:"amount_in_original_currency"`
	CurrencyRateId           *int             `gorm:"index" json:"currency_rate_id"`
	Status                   string           `gorm:"size:20;not null;default:'approved'" json:"status"`
	CreatedAt                time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}
