package main

import (
	"os"
	"os/exec"

	"github.com/goyek/goyek/v2"
)

// goCmd runs the go tool with args, streaming output to the task log.
func goCmd(a *goyek.A, args ...string) {
	a.Helper()
	a.Logf("go %v", args)
	cmd := exec.CommandContext(a.Context(), "go", args...)
	cmd.Stdout = a.Output()
	cmd.Stderr = a.Output()
	if err := cmd.Run(); err != nil {
		a.Error(err)
	}
}

var vet = goyek.Define(goyek.Task{
	Name:  "vet",
	Usage: "Run go vet on all packages",
	Action: func(a *goyek.A) {
		goCmd(a, "vet", "./...")
	},
})

var test = goyek.Define(goyek.Task{
	Name:  "test",
	Usage: "Run unit tests (docker-backed tests are skipped)",
	Action: func(a *goyek.A) {
		goCmd(a, "test", "-short", "-race", "./...")
	},
})

var integration = goyek.Define(goyek.Task{
	Name:  "integration",
	Usage: "Run all tests including those that need docker",
	Action: func(a *goyek.A) {
		goCmd(a, "test", "-count=1", "./...")
	},
})

var all = goyek.Define(goyek.Task{
	Name:  "all",
	Usage: "Run vet and unit tests",
	Deps:  goyek.Deps{vet, test},
})

var _ = goyek.Define(goyek.Task{
	Name:  "ci",
	Usage: "Run vet, unit and integration tests",
	Deps:  goyek.Deps{vet, test, integration},
})

func main() {
	goyek.SetDefault(all)
	goyek.Main(os.Args[1:])
}
