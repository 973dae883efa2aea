package main

import (
	"os"

	memdcmder "github.com/papercomputeco/memd/cmd/memd"
)

func main() {
	cmd := memdcmder.NewMemdCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
