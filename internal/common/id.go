package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a unique scenario run ID with the "run_" prefix
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewSuiteID generates a unique suite execution ID with the "suite_" prefix
func NewSuiteID() string {
	return "suite_" + uuid.New().String()
}
