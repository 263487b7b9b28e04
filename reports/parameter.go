package reports

// Parameter is the "what is measured" dimension of a fact: either an Index
// or an Item, identified by a stable numeric code.
type Parameter interface {
	HierarchyValue
	ParameterName() string
	ParameterCode() int
	AuthorizedFrcIds() []int
	SectionIds() []int
}

// Index is a calculated report indicator.
type Index struct {
	Id          int
	Name        string
	Code        int
	IsActive    bool
	FrcIds      []int
	Sections    []int
	ReportTypes []int
}

func (i *Index) ValueId() int            { return i.Id }
func (i *Index) ParameterName() string   { return i.Name }
func (i *Index) ParameterCode() int      { return i.Code }
func (i *Index) AuthorizedFrcIds() []int { return i.FrcIds }
func (i *Index) SectionIds() []int       { return i.Sections }

// Item is an expense/revenue article. Items whose codes appear in the
// allocation map double as allocation level markers.
type Item struct {
	Id          int
	Name        string
	Code        int
	IsActive    bool
	FrcIds      []int
	Sections    []int
	ReportTypes []int
}

func (i *Item) ValueId() int            { return i.Id }
func (i *Item) ParameterName() string   { return i.Name }
func (i *Item) ParameterCode() int      { return i.Code }
func (i *Item) AuthorizedFrcIds() []int { return i.FrcIds }
func (i *Item) SectionIds() []int       { return i.Sections }

// AllocationLevel is the stage of the cost allocation cascade.
type AllocationLevel int

const (
	AllocationLevelUndefined AllocationLevel = iota
	AllocationLevelAffect
	AllocationLevelComplain
	AllocationLevelForget
	AllocationLevelOwnExpenses
	AllocationLevelAmountUsd
)

// Item codes bound to allocation levels.
const (
	ItemCodeAffect      = 90110
	ItemCodeComplain    = 90105
	ItemCodeForget      = 90101
	ItemCodeOwnExpenses = 90100
	ItemCodeAmountUsd   = 91000
)

var allocationLevelByItemCode = map[int]AllocationLevel{
	ItemCodeAffect:      AllocationLevelAffect,
	ItemCodeComplain:    AllocationLevelComplain,
	ItemCodeForget:      AllocationLevelForget,
	ItemCodeOwnExpenses: AllocationLevelOwnExpenses,
	ItemCodeAmountUsd:   AllocationLevelAmountUsd,
}

// AllocationIndex derives the item's allocation level from its code.
func (i *Item) AllocationIndex() AllocationLevel {
	return allocationLevelByItemCode[i.Code]
}
