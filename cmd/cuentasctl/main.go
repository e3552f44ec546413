package main

import (
	"context"
	"os"

	"cuentas/internal/commands"
)

func main() {
	if err := commands.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}
