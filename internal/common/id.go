package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a unique scan run ID with the "scan_" prefix
// Format: scan_<uuid>
func NewRunID() string {
	return "scan_" + uuid.New().String()
}
