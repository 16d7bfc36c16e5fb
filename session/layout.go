package session

import (
	"path/filepath"

	"github.com/lcpu-club/optdeadline/common/consts"
)

// Layout resolves every path of the on-disk session contract. Nothing else
// builds session paths by hand.
type Layout struct {
	root string
}

func NewLayout(root string) Layout {
	return Layout{root: root}
}

func (l Layout) Root() string {
	return l.root
}

func (l Layout) Dir(id string) string {
	return filepath.Join(l.root, id)
}

func (l Layout) Started(id string) string {
	return filepath.Join(l.Dir(id), consts.StartedFile)
}

func (l Layout) Completed(id string) string {
	return filepath.Join(l.Dir(id), consts.CompletedFile)
}

func (l Layout) Deadline(id string) string {
	return filepath.Join(l.Dir(id), consts.DeadlineFile)
}

func (l Layout) Process(id string) string {
	return filepath.Join(l.Dir(id), consts.ProcessFile)
}

func (l Layout) Config(id string) string {
	return filepath.Join(l.Dir(id), consts.ConfigFile)
}

func (l Layout) Algorithms(id string) string {
	return filepath.Join(l.Dir(id), consts.AlgorithmsFile)
}

func (l Layout) Tmp(id string) string {
	return filepath.Join(l.Dir(id), consts.TmpDirectory)
}

func (l Layout) Output(id string) string {
	return filepath.Join(l.Dir(id), consts.OutputDir)
}

// Stdout is the captured standard output of one algorithm variant, flag
// being "-1" or "-2".
func (l Layout) Stdout(id string, flag string) string {
	return filepath.Join(l.Output(id), "algorithm"+flag+"_out.txt")
}

func (l Layout) Stderr(id string, flag string) string {
	return filepath.Join(l.Output(id), "algorithm"+flag+"_err.txt")
}

func (l Layout) Result(id string) string {
	return filepath.Join(l.Output(id), consts.ResultFile)
}

// ResultPattern matches the file the solver writes for algorithm 2.
func (l Layout) ResultPattern(id string) string {
	return filepath.Join(l.Output(id), consts.ResultFilePattern)
}

func (l Layout) OutputTextPattern(id string) string {
	return filepath.Join(l.Output(id), "*.txt")
}
