package status

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/lcpu-club/optdeadline/common/consts"
)

var ErrMalformedRecord = errors.New("malformed result record")

var (
	coresPattern    = regexp.MustCompile(`No\. Cores: (\d+);`)
	deadlinePattern = regexp.MustCompile(`Deadline: ([0-9.e+]+)\n`)
)

// Allocation is the solver's answer for one application.
type Allocation struct {
	Cores    int
	Deadline float64
}

// DumpParser extracts allocations from the region after the last dump
// marker of a solver result file.
type DumpParser struct {
	// Applications is the expected number of allocations. Negative disables
	// the check.
	Applications int
}

func NewDumpParser(applications int) *DumpParser {
	return &DumpParser{Applications: applications}
}

func (p *DumpParser) ParseFile(path string) ([]Allocation, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return p.Parse(string(b))
}

func (p *DumpParser) Parse(content string) ([]Allocation, error) {
	i := strings.LastIndex(content, consts.DumpProcessMarker)
	if i < 0 {
		return nil, fmt.Errorf("%w: no %s marker", ErrMalformedRecord, consts.DumpProcessMarker)
	}
	content = content[i:]
	cores := coresPattern.FindAllStringSubmatch(content, -1)
	deadlines := deadlinePattern.FindAllStringSubmatch(content, -1)
	if len(cores) != len(deadlines) {
		return nil, fmt.Errorf("%w: %v core counts, %v deadlines", ErrMalformedRecord, len(cores), len(deadlines))
	}
	if p.Applications >= 0 && len(cores) != p.Applications {
		return nil, fmt.Errorf("%w: %v allocations for %v applications", ErrMalformedRecord, len(cores), p.Applications)
	}
	allocations := make([]Allocation, 0, len(cores))
	for i := range cores {
		n, err := strconv.Atoi(cores[i][1])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		d, err := strconv.ParseFloat(deadlines[i][1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		allocations = append(allocations, Allocation{Cores: n, Deadline: d})
	}
	return allocations, nil
}
