package types

// WSCommandResult is the standard response for command execution.
type WSCommandResult struct {
	Type    string           `json:"type"`            // "<command>_result"
	Success bool             `json:"success"`         // true if command succeeded
	Error   *ValidationError `json:"error,omitempty"` // Validation errors if failed
	Data    any              `json:"data,omitempty"`  // Optional response data
}

// APIError is the body of a failed REST request.
type APIError struct {
	Error string `json:"error"`
}

// WSTestResult is sent when a notification test completes.
type WSTestResult struct {
	Type     string `json:"type"`            // "test_result"
	TestType string `json:"test_type"`       // webhook, log, email, zabbix or mqtt
	Success  bool   `json:"success"`         // true if the test message was delivered
	Error    string `json:"error,omitempty"` // Delivery error
}
