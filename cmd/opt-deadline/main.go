package main

import (
	"fmt"
	"os"

	"github.com/lcpu-club/optdeadline/command"
)

func main() {
	app := command.NewApp(command.NewCommand())
	err := app.Run(os.Args)
	if err != nil {
		fmt.Println("opt-deadline:", err)
		os.Exit(1)
	}
}
