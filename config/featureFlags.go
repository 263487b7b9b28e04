package config

import (
	"os"
	"strings"
)

// CalculationTriggerEnabled gates the expense and revenue cascade.
//
// Set via env:
// - FINCALC_CALCULATION_TRIGGER=false to disable (enabled by default)
func CalculationTriggerEnabled() bool {
	return boolFromEnv("FINCALC_CALCULATION_TRIGGER", true)
}

// AllocationTriggerEnabled gates the allocation cascade.
//
// Set via env:
// - FINCALC_ALLOCATION_TRIGGER=false to disable (enabled by default)
func AllocationTriggerEnabled() bool {
	return boolFromEnv("FINCALC_ALLOCATION_TRIGGER", true)
}

// OnlyActualDataMode makes fact changes overwrite the stored row in place
// instead of appending a new snapshot version.
func OnlyActualDataMode() bool {
	return boolFromEnv("FINCALC_ONLY_ACTUAL_DATA", false)
}

// MonitoringModeEnabled adds per-batch timing entries to the log.
func MonitoringModeEnabled() bool {
	return boolFromEnv("FINCALC_MONITORING_MODE", false)
}

// DefaultCalculatorId is the change-queue partition used when a data change
// does not name its own calculator run.
func DefaultCalculatorId() string {
	id := strings.TrimSpace(os.Getenv("FINCALC_DEFAULT_CALCULATOR_ID"))
	if id == "" {
		return "00000000-0000-0000-0000-000000000000"
	}
	return id
}

// Section ids splitting the parameter catalog into expense and revenue
// halves, for indexes and items separately.
func IndexExpensesSectionId() int {
	return intFromEnv("FINCALC_INDEX_EXPENSES_SECTION_ID", 0)
}

func ItemExpensesSectionId() int {
	return intFromEnv("FINCALC_ITEM_EXPENSES_SECTION_ID", 0)
}

func IndexRevenueSectionId() int {
	return intFromEnv("FINCALC_INDEX_REVENUE_SECTION_ID", 0)
}

func ItemRevenueSectionId() int {
	return intFromEnv("FINCALC_ITEM_REVENUE_SECTION_ID", 0)
}

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
