package models

import (
	"bitbucket.org/mmdatafocus/fincalc_backend/config"
)

// MigrateModels keeps the schema aligned with the model structs.
func MigrateModels() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&DataType{},
		&Period{},
		&Frc{},
		&ReportIndex{},
		&ReportItem{},
		&Section{},
		&ParameterFrc{},
		&ParameterSection{},
		&OriginalCurrency{},
		&CurrencyRate{},
		&ExpenseRequest{},
		&ReportData{},
		&DataChange{},
		&ReportDataHistory{},
	)
}
