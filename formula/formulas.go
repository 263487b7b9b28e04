package formula

import (
	"fmt"
	"sort"

	"bitbucket.org/mmdatafocus/fincalc_backend/reports"
)

// Parameter codes of the calculated report indicators.
const (
	CodeTotalExpenses                 = 40000
	CodeTotalExpensesTo               = 40010
	CodeExpensesFrom                  = 40020
	CodeTakePercent                   = 40040
	CodeTaxPercent                    = 40060
	CodeTotalPercent                  = 40080
	CodeBonusesBelowTheLine           = 44015
	CodeBonusesBelowTheLineTotal      = 44016
	CodeFxResult                      = 99990
	CodeGrossRevenueTotal             = 110001
	CodeGrossRevenueAfa               = 110010
	CodeGrossRevenueAfp               = 110020
	CodeNonCommissionRevenue          = 110030
	CodeGrossRevenueGetUniq           = 110040
	CodeNetRevenueTotal               = 310001
	CodeNetRevenueAfa                 = 310010
	CodeNetRevenueAfp                 = 310020
	CodeNetRevenueGetUniq             = 310040
	CodeTotalMargin                   = 333333
	CodeNetProfitBeforeBonuses        = 444444
	CodeNetProfitAfterBonuses         = 555555
	CodeTotalContributionTo           = 777777
	CodeTotalContributionsAndExpenses = 777778
	CodeContributionFrom              = 777779
	CodeAllocatedRedExpenses          = 888880
	CodeAllocatedOwnRedExpenses       = 888890
	CodeAmountToAllocateAffect        = 888891
	CodeAmountToAllocateComplain      = 888892
	CodeAmountToAllocateForget        = 888893
)

func newFormula(svc *Service, set FrcDataSet, dataType *reports.DataType, frc *reports.Frc, parameterCode int) *Formula {
	return &Formula{
		parameterCode: parameterCode,
		set:           set,
		dataType:      dataType,
		frc:           frc,
		parameter:     svc.ParameterByCode(parameterCode),
	}
}

// presentCodes collects the distinct parameter codes present in the set.
func presentCodes(set FrcDataSet) []int {
	seen := make(map[int]bool)
	var codes []int
	for _, dataList := range set {
		for _, d := range dataList {
			code := d.ParameterCode()
			if code == 0 || seen[code] {
				continue
			}
			seen[code] = true
			codes = append(codes, code)
		}
	}
	sort.Ints(codes)
	return codes
}

func expenseRequestUsdSum(requests []*reports.ExpenseRequest) float64 {
	var sum float64
	for _, request := range requests {
		if request.AmountWithoutTaxesUsd != nil {
			sum += *request.AmountWithoutTaxesUsd
		}
	}
	return sum
}

// NewTotalExpensesFormula sums every value in the set plus the approved
// expense requests into Total expenses.
func NewTotalExpensesFormula(svc *Service, set FrcDataSet, dataType *reports.DataType, frc *reports.Frc, requests []*reports.ExpenseRequest) *Formula {
	f := newFormula(svc, set, dataType, frc, CodeTotalExpenses)
	f.requiredCodes = presentCodes(set)
	requestSum := expenseRequestUsdSum(requests)
	f.calculate = func(frcValues map[int]map[int]float64) float64 {
		return requestSum + sumAll(frcValues)
	}
	return f
}

// NewTotalMarginFormula sums every value in the set plus the approved
// expense requests into Total margin.
func NewTotalMarginFormula(svc *Service, set FrcDataSet, dataType *reports.DataType, frc *reports.Frc, requests []*reports.ExpenseRequest) *Formula {
	f := newFormula(svc, set, dataType, frc, CodeTotalMargin)
	f.requiredCodes = presentCodes(set)
	requestSum := expenseRequestUsdSum(requests)
	f.calculate = func(frcValues map[int]map[int]float64) float64 {
		return requestSum + sumAll(frcValues)
	}
	return f
}

// NewTotalExpensesToFormula rolls the FRC's own Total expenses up for its
// parent.
func NewTotalExpensesToFormula(svc *Service, set FrcDataSet, dataType *reports.DataType, frc *reports.Frc) *Formula {
	f := newFormula(svc, restrictToFrc(set, frc), dataType, frc, CodeTotalExpensesTo)
	f.requiredCodes = []int{CodeTotalExpenses}
	f.calculate = func(frcValues map[int]map[int]float64) float64 {
		return sumCodes(frcValues, CodeTotalExpenses)
	}
	return f
}

// NewExpensesFromFormula attributes a child's Total expenses to rollup to
// the parent FRC.
func NewExpensesFromFormula(svc *Service, set FrcDataSet, dataType *reports.DataType, parentFrc *reports.Frc, childFrc *reports.Frc) *Formula {
	f := newFormula(svc, restrictToFrc(set, childFrc), dataType, parentFrc, CodeExpensesFrom)
	f.requiredCodes = []int{CodeTotalExpensesTo}
	f.calculate = func(frcValues map[int]map[int]float64) float64 {
		return sumCodes(frcValues, CodeTotalExpensesTo)
	}
	return f
}

// NewTotalContributionToFormula computes the FRC's own contribution rollup:
// Total margin minus Total expenses.
func NewTotalContributionToFormula(svc *Service, set FrcDataSet, dataType *reports.DataType, frc *reports.Frc) *Formula {
	f := newFormula(svc, restrictToFrc(set, frc), dataType, frc, CodeTotalContributionTo)
	f.requiredCodes = []int{CodeTotalMargin, CodeTotalExpenses}
	f.calculate = func(frcValues map[int]map[int]float64) float64 {
		var result float64
		for _, values := range frcValues {
			result += values[CodeTotalMargin] - values[CodeTotalExpenses]
		}
		return result
	}
	return f
}

// NewContributionFromFormula attributes a child's contribution rollup to
// the parent FRC.
func NewContributionFromFormula(svc *Service, set FrcDataSet, dataType *reports.DataType, parentFrc *reports.Frc, childFrc *reports.Frc) *Formula {
	f := newFormula(svc, restrictToFrc(set, childFrc), dataType, parentFrc, CodeContributionFrom)
	f.requiredCodes = []int{CodeTotalContributionTo}
	f.calculate = func(frcValues map[int]map[int]float64) float64 {
		return sumCodes(frcValues, CodeTotalContributionTo)
	}
	return f
}

// NewTotalContributionsAndExpensesFormula computes the root FRC's combined
// contribution result.
func NewTotalContributionsAndExpensesFormula(svc *Service, set FrcDataSet, dataType *reports.DataType, frc *reports.Frc) *Formula {
	f := newFormula(svc, restrictToFrc(set, frc), dataType, frc, CodeTotalContributionsAndExpenses)
	f.requiredCodes = []int{CodeTotalMargin, CodeTotalExpenses}
	f.calculate = func(frcValues map[int]map[int]float64) float64 {
		var result float64
		for _, values := range frcValues {
			result += values[CodeTotalMargin] - values[CodeTotalExpenses]
		}
		return result
	}
	return f
}

// NewTotalPercentFormula sums the Take and Tax allocation percents.
func NewTotalPercentFormula(svc *Service, set FrcDataSet, dataType *reports.DataType, frc *reports.Frc) *Formula {
	f := newFormula(svc, restrictToFrc(set, frc), dataType, frc, CodeTotalPercent)
	f.requiredCodes = []int{CodeTakePercent, CodeTaxPercent}
	f.calculate = func(frcValues map[int]map[int]float64) float64 {
		return sumCodes(frcValues, CodeTakePercent, CodeTaxPercent)
	}
	return f
}

// NewAmountToAllocateFormula builds the amount-to-allocate formula for an
// allocation level. The affect level sums the whole prepared set; complain
// and forget consume the parent FRC's bucket only.
func NewAmountToAllocateFormula(level reports.AllocationLevel, svc *Service, set FrcDataSet, dataType *reports.DataType, frc *reports.Frc, parentFrc *reports.Frc) (*Formula, error) {
	var f *Formula
	switch level {
	case reports.AllocationLevelAffect:
		f = newFormula(svc, set, dataType, frc, CodeAmountToAllocateAffect)
		f.requiredCodes = []int{CodeTotalExpenses}
	case reports.AllocationLevelComplain:
		f = newFormula(svc, restrictToFrc(set, parentFrc), dataType, frc, CodeAmountToAllocateComplain)
		f.requiredCodes = []int{reports.ItemCodeAffect}
	case reports.AllocationLevelForget:
		f = newFormula(svc, restrictToFrc(set, parentFrc), dataType, frc, CodeAmountToAllocateForget)
		f.requiredCodes = []int{reports.ItemCodeComplain, reports.ItemCodeForget}
	default:
		return nil, fmt.Errorf("wrong allocation level: %d", level)
	}

	required := f.requiredCodes
	f.calculate = func(frcValues map[int]map[int]float64) float64 {
		return sumCodes(frcValues, required...)
	}
	return f, nil
}

// NewAllocatedExpensesFormula builds the allocated-expenses formula for an
// allocation level: the level's amount to allocate, weighted by the FRC's
// Total percent. A negative Total percent counts as zero.
func NewAllocatedExpensesFormula(level reports.AllocationLevel, svc *Service, set FrcDataSet, dataType *reports.DataType, frc *reports.Frc) (*Formula, error) {
	var parameterCode, mainCode int
	switch level {
	case reports.AllocationLevelAffect:
		parameterCode, mainCode = reports.ItemCodeAffect, CodeAmountToAllocateAffect
	case reports.AllocationLevelComplain:
		parameterCode, mainCode = reports.ItemCodeComplain, CodeAmountToAllocateComplain
	case reports.AllocationLevelForget:
		parameterCode, mainCode = reports.ItemCodeForget, CodeAmountToAllocateForget
	default:
		return nil, fmt.Errorf("wrong allocation level: %d", level)
	}

	restricted := restrictToFrc(set, frc)
	f := newFormula(svc, restricted, dataType, frc, parameterCode)
	f.requiredCodes = []int{mainCode}

	total := totalPercentValue(restricted[frc.Id])
	if total < 0 {
		total = 0
	}
	f.calculate = func(frcValues map[int]map[int]float64) float64 {
		return sumCodes(frcValues, mainCode) * total / 100
	}
	return f, nil
}

// totalPercentValue reads the Total percent value straight from the
// bucket; it is a weight, not a consumed input.
func totalPercentValue(dataList []reports.Data) float64 {
	for _, d := range dataList {
		index := d.Index()
		if index == nil || index.Code != CodeTotalPercent {
			continue
		}
		if sum := d.SumInUsd(); sum != nil {
			return *sum
		}
		return 0
	}
	return 0
}

// NewFxResultFormula recalculates the FX result: facts of the FRC carrying
// an original-currency amount, plus rate differences of its expense
// requests.
func NewFxResultFormula(svc *Service, set FrcDataSet, dataType *reports.DataType, frc *reports.Frc, requests []*reports.ExpenseRequest) *Formula {
	restricted := restrictToFrc(set, frc)
	f := newFormula(svc, restricted, dataType, frc, CodeFxResult)

	codes := []int{CodeFxResult}
	for _, d := range restricted[frc.Id] {
		if d.SumInOriginalCurrency() == nil || d.OriginalCurrency() == nil {
			continue
		}
		if code := d.ParameterCode(); code != 0 && !containsInt(codes, code) {
			codes = append(codes, code)
		}
	}
	f.requiredCodes = codes

	requestSum := expenseRequestFxSum(requests, frc)
	f.calculate = func(frcValues map[int]map[int]float64) float64 {
		return requestSum + sumAll(frcValues)
	}
	return f
}

func expenseRequestFxSum(requests []*reports.ExpenseRequest, frc *reports.Frc) float64 {
	var sum float64
	for _, request := range requests {
		if request.Frc == nil || frc == nil || request.Frc.Id != frc.Id {
			continue
		}
		if request.AmountInOriginalCurrency == nil || request.Currency == nil {
			continue
		}
		if request.AmountWithoutTaxesUsd == nil {
			amount := *request.AmountInOriginalCurrency
			sum += amount/request.Currency.BudgetRate - amount/request.Currency.MonthlyRate
		} else {
			sum += *request.AmountWithoutTaxesUsd
		}
	}
	return sum
}

// NewGrossRevenueTotalFormula sums the gross revenue components.
func NewGrossRevenueTotalFormula(svc *Service, set FrcDataSet, dataType *reports.DataType, frc *reports.Frc) *Formula {
	f := newFormula(svc, restrictToFrc(set, frc), dataType, frc, CodeGrossRevenueTotal)
	f.requiredCodes = []int{CodeGrossRevenueAfa, CodeGrossRevenueAfp, CodeNonCommissionRevenue, CodeGrossRevenueGetUniq}
	f.calculate = func(frcValues map[int]map[int]float64) float64 {
		return sumCodes(frcValues, CodeGrossRevenueAfa, CodeGrossRevenueAfp, CodeNonCommissionRevenue, CodeGrossRevenueGetUniq)
	}
	return f
}

// NewNetRevenueTotalFormula sums the net revenue components.
func NewNetRevenueTotalFormula(svc *Service, set FrcDataSet, dataType *reports.DataType, frc *reports.Frc) *Formula {
	f := newFormula(svc, restrictToFrc(set, frc), dataType, frc, CodeNetRevenueTotal)
	f.requiredCodes = []int{CodeNetRevenueAfa, CodeNetRevenueAfp, CodeNonCommissionRevenue, CodeNetRevenueGetUniq}
	f.calculate = func(frcValues map[int]map[int]float64) float64 {
		return sumCodes(frcValues, CodeNetRevenueAfa, CodeNetRevenueAfp, CodeNonCommissionRevenue, CodeNetRevenueGetUniq)
	}
	return f
}

// NewNetProfitBeforeBonusesFormula computes the net profit before bonuses.
// Root FRCs consume the combined contribution result; non-root FRCs
// consume their contribution rollup net of allocated expenses and the FX
// result. Absent values resolve to zero, so one expression serves both.
func NewNetProfitBeforeBonusesFormula(svc *Service, set FrcDataSet, dataType *reports.DataType, frc *reports.Frc) *Formula {
	f := newFormula(svc, restrictToFrc(set, frc), dataType, frc, CodeNetProfitBeforeBonuses)
	if frc.IsRoot() {
		f.requiredCodes = []int{CodeTotalContributionsAndExpenses, CodeBonusesBelowTheLineTotal}
	} else {
		f.requiredCodes = []int{CodeTotalContributionTo, CodeAllocatedRedExpenses, CodeAllocatedOwnRedExpenses, CodeFxResult}
	}
	f.calculate = func(frcValues map[int]map[int]float64) float64 {
		var result float64
		for _, values := range frcValues {
			result += values[CodeTotalContributionTo] -
				(values[CodeAllocatedRedExpenses] + values[CodeAllocatedOwnRedExpenses] + values[CodeFxResult]) +
				values[CodeTotalContributionsAndExpenses] -
				values[CodeBonusesBelowTheLineTotal]
		}
		return result
	}
	return f
}

// NewNetProfitAfterBonusesFormula nets the below-the-line bonuses out of
// the net profit before bonuses.
func NewNetProfitAfterBonusesFormula(svc *Service, set FrcDataSet, dataType *reports.DataType, frc *reports.Frc) *Formula {
	f := newFormula(svc, restrictToFrc(set, frc), dataType, frc, CodeNetProfitAfterBonuses)
	f.requiredCodes = []int{CodeNetProfitBeforeBonuses, CodeBonusesBelowTheLine}
	f.calculate = func(frcValues map[int]map[int]float64) float64 {
		var result float64
		for _, values := range frcValues {
			result += values[CodeNetProfitBeforeBonuses] - values[CodeBonusesBelowTheLine]
		}
		return result
	}
	return f
}
