package formula

import (
	"errors"

	"bitbucket.org/mmdatafocus/fincalc_backend/reports"
)

var ErrorWrongNodeValue = errors.New("wrong node value")

// Service resolves parameters by code and prepares formula input sets.
type Service struct {
	parameterByCode map[int]reports.Parameter
}

func NewService(indexList []*reports.Index, itemList []*reports.Item) *Service {
	parameterByCode := make(map[int]reports.Parameter, len(indexList)+len(itemList))
	for _, index := range indexList {
		parameterByCode[index.Code] = index
	}
	for _, item := range itemList {
		parameterByCode[item.Code] = item
	}
	return &Service{parameterByCode: parameterByCode}
}

// ParameterByCode returns the parameter registered under the code, or nil.
func (s *Service) ParameterByCode(code int) reports.Parameter {
	p, ok := s.parameterByCode[code]
	if !ok {
		return nil
	}
	return p
}

// IsFrcAvailableForParameter reports whether the FRC is authorized to carry
// facts of the parameter. Parameterless facts are available everywhere.
func (s *Service) IsFrcAvailableForParameter(frc *reports.Frc, p reports.Parameter) bool {
	if p == nil {
		return true
	}
	if frc == nil {
		return false
	}
	return containsInt(p.AuthorizedFrcIds(), frc.Id)
}

// PrepareFrcDataSet groups FRC-level nodes into formula input buckets,
// dropping facts whose parameter the bucket's FRC is not authorized for.
func (s *Service) PrepareFrcDataSet(frcNodes []*reports.HierarchicalDataNode) (FrcDataSet, error) {
	set := make(FrcDataSet, len(frcNodes))
	for _, node := range frcNodes {
		frc, ok := node.Value().(*reports.Frc)
		if !ok || frc == nil {
			return nil, ErrorWrongNodeValue
		}

		var dataList []reports.Data
		for _, d := range node.DataList() {
			if s.IsFrcAvailableForParameter(frc, d.Parameter()) {
				dataList = append(dataList, d)
			}
		}
		set[frc.Id] = dataList
	}
	return set, nil
}
