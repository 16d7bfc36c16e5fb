package session

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lcpu-club/optdeadline/common/consts"
	"github.com/renstrom/shortuuid"
)

var ErrInvalidID = fmt.Errorf("invalid session id")

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9_.\-]`)

// NewID builds "run_<name>_<suffix>". Spaces in the name become
// underscores and anything else outside [A-Za-z0-9_.-] becomes '-'. The
// suffix is a 22 character short uuid.
func NewID(name string) string {
	n := strings.ReplaceAll(name, " ", "_")
	n = unsafeIDChars.ReplaceAllString(n, "-")
	return consts.SessionPrefix + n + "_" + shortuuid.New()
}

// Name recovers the configuration name part of a session id.
func Name(id string) string {
	parts := strings.Split(id, "_")
	if len(parts) < 3 {
		return ""
	}
	return strings.Join(parts[1:len(parts)-1], "_")
}

// ValidateID rejects ids that could escape the session root.
func ValidateID(id string) error {
	if id == "" || id == "." || id == ".." || unsafeIDChars.MatchString(id) {
		return ErrInvalidID
	}
	return nil
}
