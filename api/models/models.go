package models

// Welcome is the payload served on the root endpoint.
type Welcome struct {
	Message string `json:"message"`
}

// APIError is the JSON error envelope returned by the API endpoints.
type APIError struct {
	Error string `json:"error"`
}

// JobsResponse lists the distinct job names with recorded executions.
type JobsResponse struct {
	Jobs []string `json:"jobs"`
}
