package main

import (
	stdlog "log"

	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		stdlog.Fatalf("Application failed: %v", err)
	}
}
