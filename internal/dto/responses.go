package dto

// ErrorResponse is the error payload for all endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	// Retryable tells the scheduler whether re-delivering the trigger can
	// succeed.
	Retryable bool `json:"retryable"`
}

// TriggerResponse is returned to the scheduler for trigger endpoints
type TriggerResponse struct {
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
}
