package main

import (
	"fmt"
	"os"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
