package models

// FrcColor partitions the FRC tree into the revenue (green) and expense
// (red) rollup branches.
type FrcColor string

const (
	FrcColorGreen FrcColor = "G"
	FrcColorRed   FrcColor = "R"
)

// ParameterType discriminates the owning catalog of a parameter join row.
type ParameterType string

const (
	ParameterTypeIndex ParameterType = "index"
	ParameterTypeItem  ParameterType = "item"
)

// ChangeStatus is the lifecycle of a queued data change.
type ChangeStatus string

const (
	ChangeStatusNew       ChangeStatus = "NEW"
	ChangeStatusPending   ChangeStatus = "PENDING"
	ChangeStatusSuccess   ChangeStatus = "SUCCESS"
	ChangeStatusFailure   ChangeStatus = "FAILURE"
	ChangeStatusUndefined ChangeStatus = "UNDEFINED"
)

// ExpenseRequestStatusApproved marks expense requests that take part in
// total calculations.
const ExpenseRequestStatusApproved = "approved"
