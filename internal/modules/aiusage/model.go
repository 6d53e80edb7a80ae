package aiusage

import "errors"

// ErrAllowanceUsed means the planner has no itinerary generations left this month.
var ErrAllowanceUsed = errors.New("monthly itinerary generation allowance used up")

// DefaultMonthlyGenerations applies when no allowance is configured.
const DefaultMonthlyGenerations = 100

// periodLayout formats the calendar month an allowance belongs to.
const periodLayout = "2006-01"
