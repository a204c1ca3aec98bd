package main

import (
	"os"

	"github.com/user/isp-cabinet/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
