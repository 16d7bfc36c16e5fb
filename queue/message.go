package queue

import (
	"encoding/json"
	"fmt"

	"github.com/lcpu-club/optdeadline/session"
	"github.com/lcpu-club/optdeadline/status"
)

var ErrMaxAttemptsExceeded = fmt.Errorf("max attempts exceeded")

// RunMessage asks for one execution, the same request POST /run takes.
type RunMessage struct {
	ConfigurationName string             `json:"configuration-name"`
	Algorithms        session.Algorithms `json:"algorithms"`
	Deadline          json.Number        `json:"deadline"`
	RequestID         string             `json:"request-id"`
}

type ReportMessage struct {
	SessionID  string       `json:"session-id"`
	RequestID  string       `json:"request-id,omitempty"`
	Status     status.State `json:"status"`
	Error      string       `json:"error,omitempty"`
	TotalCost  float64      `json:"total-cost"`
	TotalCores int          `json:"total-cores"`
	TotalVMs   int          `json:"total-vms"`
	Timestamp  int64        `json:"timestamp"` // time.Now().UnixMicro()
}

func NewReportMessage(s *status.Snapshot) *ReportMessage {
	return &ReportMessage{
		SessionID:  s.ID,
		Status:     s.Status,
		TotalCost:  s.TotalCost,
		TotalCores: s.TotalCores,
		TotalVMs:   s.TotalVMs,
	}
}
