package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/lcpu-club/optdeadline/common/consts"
	"github.com/lcpu-club/optdeadline/session"
	"github.com/lcpu-club/optdeadline/store"
	"github.com/satori/uuid"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: dev-util gen-uuid-v4 | gen-session-id NAME | fake-solver PROCESS CONFIG DEADLINE FLAG | multi-run CMD...")
		os.Exit(2)
	}
	switch os.Args[1] {
	case "gen-uuid-v4":
		fmt.Println(uuid.NewV4())
	case "gen-session-id":
		fmt.Println(session.NewID(os.Args[2]))
	case "fake-solver":
		if err := fakeSolver(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "multi-run":
		wg := &sync.WaitGroup{}
		for _, arg := range os.Args[2:] {
			wg.Add(1)
			go func(arg string) {
				cmd := exec.Command("sh", "-c", arg)
				cmd.Stdout = os.Stdout
				cmd.Stderr = os.Stderr
				fmt.Println("\r\n******** Running", arg, "********")
				err := cmd.Run()
				wg.Done()
				if err != nil {
					fmt.Println(err)
				}
			}(arg)
		}
		wg.Wait()
	}
}

// fakeSolver stands in for opt_deadline: the second variant writes a dump
// giving every application 4 cores and the requested deadline.
func fakeSolver(args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("fake-solver takes 4 arguments, got %v", len(args))
	}
	c, err := store.LoadFromPath(args[0])
	if err != nil {
		return err
	}
	fmt.Println("fake solver:", strings.Join(args, " "))
	if args[3] != session.FlagAlgorithm2 {
		return nil
	}
	b := &strings.Builder{}
	b.WriteString("fake run\n" + consts.DumpProcessMarker + "\n")
	for range c.Applications {
		fmt.Fprintf(b, "No. Cores: 4;\nDeadline: %s\n", args[2])
	}
	name := "output_result_Algorithm2_" + uuid.NewV4().String() + ".txt"
	return os.WriteFile(name, []byte(b.String()), os.FileMode(0644))
}
