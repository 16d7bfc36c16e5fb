package store

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Application field positions. The weight is always the last field.
const (
	FieldApp = iota
	FieldJobs
	FieldStages
	FieldTasks
	FieldScript
	FieldConfigApp
	FieldWeight
	ApplicationArity
)

// Application is one row of a configuration: app, jobs, stages and tasks
// files, the lua script, the ConfigApp file and the weight.
type Application []string

// Weight is the cost per core unit, taken from the last field.
func (a Application) Weight() (float64, error) {
	if len(a) == 0 {
		return 0, fmt.Errorf("empty application")
	}
	return strconv.ParseFloat(a[len(a)-1], 64)
}

// ConfigApp is the per-query config file, the second-to-last field.
func (a Application) ConfigApp() (string, error) {
	if len(a) < 2 {
		return "", fmt.Errorf("application has %v fields, no ConfigApp", len(a))
	}
	return a[len(a)-2], nil
}

type Configuration struct {
	Name         string        `json:"configuration_name"`
	Applications []Application `json:"applications"`
}

func NewConfiguration(name string, applications []Application) *Configuration {
	return &Configuration{
		Name:         name,
		Applications: applications,
	}
}

// Empty is what the status reader falls back to when no configuration can
// be read.
func Empty() *Configuration {
	return NewConfiguration("", []Application{{}})
}

// ValidateName rejects names that cannot be used as a file name in the
// store root or would not survive the header line unchanged.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." {
		return ErrInvalidName
	}
	if strings.TrimSpace(name) != name {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, "/\x00\n") {
		return ErrInvalidName
	}
	return nil
}

// Validate checks that the name is usable as a file name and that every
// row has the same number of non-blank fields. A field may not start with
// '#', since its row would read back as a header.
func (c *Configuration) Validate() error {
	if err := ValidateName(c.Name); err != nil {
		return err
	}
	arity := -1
	for i, app := range c.Applications {
		if len(app) == 0 {
			return fmt.Errorf("%w: application %v is empty", ErrMalformedRecord, i)
		}
		for _, f := range app {
			if f == "" || strings.HasPrefix(f, "#") || strings.IndexFunc(f, unicode.IsSpace) >= 0 {
				return fmt.Errorf("%w: application %v has an invalid field %q", ErrMalformedRecord, i, f)
			}
		}
		if arity >= 0 && len(app) != arity {
			return fmt.Errorf("%w: application %v has %v fields, expected %v", ErrMalformedRecord, i, len(app), arity)
		}
		arity = len(app)
	}
	return nil
}

// Normalize trims every field, as the submission form may carry stray
// whitespace.
func (c *Configuration) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	for i := range c.Applications {
		for j := range c.Applications[i] {
			c.Applications[i][j] = strings.TrimSpace(c.Applications[i][j])
		}
	}
}
