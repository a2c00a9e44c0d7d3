package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"github.com/innosystem/dispatch-platform-backend/internal/data"
)

type QueryValidator struct {
	*Validator
	DefaultSortField  data.SortField
	DefaultSortOrder  data.SortOrder
	AllowedSortFields []data.SortField
	AllowedFilters    []data.FilterKey
}

// NewJobQueryValidator returns a validator preconfigured for the jobs listing.
func NewJobQueryValidator() *QueryValidator {
	return &QueryValidator{
		Validator:         NewValidator(),
		DefaultSortField:  data.DefaultJobSortField,
		DefaultSortOrder:  data.DefaultJobSortOrder,
		AllowedSortFields: data.AllowedJobSorts,
		AllowedFilters:    data.AllowedJobFilters,
	}
}

// ParseParametersFromRequest parses query parameters from the request and returns a QueryParams struct.
func (qv *QueryValidator) ParseParametersFromRequest(r *http.Request) *data.QueryParams {
	page := qv.validateAndGetIntParams(r, "page", 1)
	pageLimit := qv.validateAndGetIntParams(r, "page_limit", 20)

	query := r.URL.Query()
	sortBy := data.SortField(query.Get("sort"))
	if sortBy == "" {
		sortBy = qv.DefaultSortField
	} else if !slices.Contains(qv.AllowedSortFields, sortBy) {
		qv.AddError("sort", "invalid sort field name")
	}

	sortOrder := data.SortOrder(strings.ToUpper(query.Get("direction")))
	if sortOrder == "" {
		sortOrder = qv.DefaultSortOrder
	} else if sortOrder != data.SortOrderASC && sortOrder != data.SortOrderDESC {
		qv.AddError("direction", "invalid sort order. valid values are 'asc' and 'desc'")
	}

	filters := make(map[data.FilterKey]interface{})
	for _, fk := range qv.AllowedFilters {
		value := strings.TrimSpace(query.Get(string(fk)))
		if value != "" {
			filters[fk] = value
		}
	}

	if statusValue, ok := filters[data.FilterKeyStatus]; ok {
		status, err := data.ToJobStatus(statusValue.(string))
		if err != nil {
			qv.AddError("status", "invalid status value")
		} else {
			filters[data.FilterKeyStatus] = status
		}
	}

	if priorityValue, ok := filters[data.FilterKeyPriority]; ok {
		priority, err := strconv.Atoi(priorityValue.(string))
		if err != nil || data.JobPriority(priority).Validate() != nil {
			qv.AddError("priority", "invalid priority value")
		} else {
			filters[data.FilterKeyPriority] = data.JobPriority(priority)
		}
	}

	for _, fk := range []data.FilterKey{data.FilterKeyCreatedAtAfter, data.FilterKeyCreatedAtBefore} {
		if value, ok := filters[fk]; ok {
			filters[fk] = qv.validateAndGetTimeParams(string(fk), value)
		}
	}

	if qv.HasErrors() {
		return &data.QueryParams{}
	}

	return &data.QueryParams{
		Query:     strings.TrimSpace(query.Get("q")),
		Page:      page,
		PageLimit: pageLimit,
		SortBy:    sortBy,
		SortOrder: sortOrder,
		Filters:   filters,
	}
}

// validateAndGetIntParams validates the query parameter and returns the value as an integer.
func (qv *QueryValidator) validateAndGetIntParams(r *http.Request, param string, defaultValue int) int {
	value := r.URL.Query().Get(param)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		qv.CheckError(err, param, "parameter must be an integer")
		return defaultValue
	}

	return intValue
}

// validateAndGetTimeParams validates the query parameter and returns the value as a time.Time.
func (qv *QueryValidator) validateAndGetTimeParams(param string, value interface{}) time.Time {
	dateStr, ok := value.(string)
	if !ok {
		qv.Check(false, param, "invalid date format. valid format is 'YYYY-MM-DD'")
		return time.Time{}
	}

	dateParam, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		qv.Check(false, param, "invalid date format. valid format is 'YYYY-MM-DD'")
		return time.Time{}
	}

	return dateParam
}
