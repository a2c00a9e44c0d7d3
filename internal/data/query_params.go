package data

import "fmt"

type QueryParams struct {
	Query               string
	Page                int
	PageLimit           int
	SortBy              SortField
	SortOrder           SortOrder
	Filters             map[FilterKey]interface{}
	ForUpdateSkipLocked bool
}

type SortOrder string

const (
	SortOrderASC  SortOrder = "ASC"
	SortOrderDESC SortOrder = "DESC"
)

type SortField string

const (
	SortFieldName      SortField = "name"
	SortFieldPriority  SortField = "priority"
	SortFieldCreatedAt SortField = "created_at"
	SortFieldUpdatedAt SortField = "updated_at"
)

type FilterKey string

const (
	FilterKeyID              FilterKey = "id"
	FilterKeyStatus          FilterKey = "status"
	FilterKeyCustomerID      FilterKey = "customer_id"
	FilterKeyJobTypeID       FilterKey = "job_type_id"
	FilterKeyProjectID       FilterKey = "project_id"
	FilterKeyPriority        FilterKey = "priority"
	FilterKeyCreatedAtAfter  FilterKey = "created_at_after"
	FilterKeyCreatedAtBefore FilterKey = "created_at_before"
	FilterKeyCompletedOnly   FilterKey = "completed_only"
	FilterKeyFailedOnly      FilterKey = "failed_only"
)

func (fk FilterKey) Equals() string {
	return fmt.Sprintf("%s = ?", fk)
}

func (fk FilterKey) LowerThan() string {
	return fmt.Sprintf("%s < ?", fk)
}

type Filter struct {
	Key   FilterKey
	Value interface{}
}

func NewFilter(key FilterKey, value interface{}) Filter {
	return Filter{
		Key:   key,
		Value: value,
	}
}
