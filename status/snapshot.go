package status

import (
	"time"

	"github.com/lcpu-club/optdeadline/store"
)

type State string

const (
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateError     State = "ERROR"
)

// Placeholder fills text fields that have no value yet.
const Placeholder = "-"

const (
	FileNotFound    = "File not found"
	TimestampFormat = "2006-01-02 at 15:04:05"
)

// Snapshot is the view of one session computed from its directory. Lists
// are indexed like Configuration.Applications.
type Snapshot struct {
	ID            string               `json:"session-id"`
	Name          string               `json:"name"`
	Status        State                `json:"status"`
	Configuration *store.Configuration `json:"configuration"`

	Cores      []int    `json:"cores"`
	Deadlines  []string `json:"deadlines"`
	Capacities []int    `json:"capacities"`
	VMs        []int    `json:"vms"`
	Queries    []string `json:"queries"`

	TotalCost  float64 `json:"total-cost"`
	TotalCores int     `json:"total-cores"`
	TotalVMs   int     `json:"total-vms"`

	InitialDeadline    string   `json:"initial-deadline"`
	ComputedDeadline   string   `json:"computed-deadline"`
	Started            string   `json:"started"`
	StartedFormatted   string   `json:"started-formatted"`
	Completed          string   `json:"completed"`
	CompletedFormatted string   `json:"completed-formatted"`
	OutputFiles        []string `json:"output-files"`

	// Errors lists the degradations applied while reading.
	Errors []string `json:"errors,omitempty"`

	startedAt time.Time
}

// Done reports whether the snapshot can no longer change.
func (s *Snapshot) Done() bool {
	return s.Status == StateCompleted || s.Status == StateError
}

func (s *Snapshot) degrade(err error) {
	s.Errors = append(s.Errors, err.Error())
}
