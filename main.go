package main

import (
	"fmt"
	"os"

	"go.minekube.com/gate/cmd/gate"
)

func main() {
	if err := gate.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
