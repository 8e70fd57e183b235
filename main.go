package main

import (
	"context"
	"fmt"
	"os"

	"dynetl/internal/app"
)

func main() {
	if err := app.NewCommand(os.Stdout).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err.Error())
		os.Exit(1)
	}
}
