package dto

import "time"

// TimeRangePayload is one start/end pair inside a multi-range create.
type TimeRangePayload struct {
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

// CreateUnavailabilityRequest declares one or more blocks on a single date.
// Times use HH:MM 24-hour strings; a full-day block omits them.
type CreateUnavailabilityRequest struct {
	UserID     string             `json:"user_id"`
	Date       string             `json:"date" validate:"required"`
	IsFullDay  bool               `json:"is_full_day"`
	StartTime  string             `json:"start_time"`
	EndTime    string             `json:"end_time"`
	TimeRanges []TimeRangePayload `json:"time_ranges"`
	Reason     string             `json:"reason" validate:"max=500"`
	// ReplaceExisting deletes the date's manual records before inserting.
	ReplaceExisting bool `json:"replace_existing"`
}

// UpdateUnavailabilityRequest modifies a manual record in place.
type UpdateUnavailabilityRequest struct {
	Date      *string `json:"date"`
	IsFullDay *bool   `json:"is_full_day"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Reason    *string `json:"reason" validate:"omitempty,max=500"`
}

// GenerateRecurringRequest expands a recurring rule into concrete records.
type GenerateRecurringRequest struct {
	UserID    string `json:"user_id"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
	Pattern   string `json:"pattern" validate:"required,oneof=daily weekly monthly custom"`
	Interval  int    `json:"interval" validate:"omitempty,min=1,max=52"`
	IsFullDay bool   `json:"is_full_day"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason" validate:"max=500"`
}

// UnavailabilityQuery filters unavailability listings.
type UnavailabilityQuery struct {
	From          *time.Time
	To            *time.Time
	IncludeSystem bool
}
