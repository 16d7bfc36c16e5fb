package replacer

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/lcpu-club/optdeadline/common/consts"
)

// fileToArrayPattern captures the path argument of solver.fileToArray calls.
var fileToArrayPattern = regexp.MustCompile(`solver\.fileToArray\("([^"]+)"\)`)

var nodesAssignmentPattern = regexp.MustCompile(`Nodes = \d+`)

// Values fills the placeholders left in imported scripts.
type Values struct {
	Nodes   int
	DirPath string
}

type Replacer struct {
	strReplacer *strings.Replacer
}

func NewReplacer(v Values) *Replacer {
	return &Replacer{
		strReplacer: strings.NewReplacer(
			consts.NodesPlaceholder, strconv.Itoa(v.Nodes),
			consts.DirPathPlaceholder, v.DirPath,
		),
	}
}

func (r *Replacer) Replace(input string) string {
	return r.strReplacer.Replace(input)
}

// RewriteDataPaths calls rewrite for the path of every fileToArray call and
// substitutes the result, leaving the rest of each call untouched.
func RewriteDataPaths(script string, rewrite func(path string) string) string {
	return fileToArrayPattern.ReplaceAllStringFunc(script, func(call string) string {
		m := fileToArrayPattern.FindStringSubmatch(call)
		return strings.Replace(call, `"`+m[1]+`"`, `"`+rewrite(m[1])+`"`, 1)
	})
}

// DataPaths lists the fileToArray paths of a script in order of appearance.
func DataPaths(script string) []string {
	paths := []string{}
	for _, m := range fileToArrayPattern.FindAllStringSubmatch(script, -1) {
		paths = append(paths, m[1])
	}
	return paths
}

// PlaceholdNodes turns literal "Nodes = <n>" assignments into the
// placeholder the solver fills for each core count it simulates.
func PlaceholdNodes(script string) string {
	return nodesAssignmentPattern.ReplaceAllLiteralString(script, "Nodes = "+consts.NodesPlaceholder)
}

// PoolPath is where an imported query keeps the auxiliary file base(path).
func PoolPath(pool string, query string, path string) string {
	return filepath.Join(pool, "test_"+query, filepath.Base(path))
}

// DirPath is the placeholder form used by converted folders.
func DirPath(scriptName string, path string) string {
	return consts.DirPathPlaceholder + "/" + scriptName + "/" + filepath.Base(path)
}

// Expand fills both placeholders of script.
func Expand(script string, v Values) string {
	return NewReplacer(v).Replace(script)
}
