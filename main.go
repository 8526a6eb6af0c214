package main

import (
	"fmt"
	"os"

	"tradepulse/bootstrap"
	"tradepulse/config"
)

func main() {
	cfg := config.Load()

	app, err := bootstrap.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tradepulse: %v\n", err)
		os.Exit(1)
	}
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tradepulse: %v\n", err)
		os.Exit(1)
	}
}
