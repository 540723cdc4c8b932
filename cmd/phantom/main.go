package main

import (
	"os"

	"github.com/user/phantom/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
