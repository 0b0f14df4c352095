package analytics

import "time"

// APIRequestLog is one authenticated API request.
type APIRequestLog struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Endpoint    string    `json:"endpoint"` // route pattern, e.g. /v1/courses/:id
	Method      string    `json:"method"`
	RequestTime time.Time `json:"request_time"` // UTC
}

type EndpointUsage struct {
	Endpoint string `json:"endpoint"`
	Method   string `json:"method"`
	Requests int    `json:"total_requests"`
}

type UserActivity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Requests int    `json:"total_requests"`
}

type CoursePopularity struct {
	CourseID   string    `json:"course_id"`
	CourseName string    `json:"course_name"`
	Views      int       `json:"views"`
	LastViewed time.Time `json:"last_viewed"` // UTC
}

type UsageFilter struct {
	From time.Time `query:"from"`
	To   time.Time `query:"to"`
}
