package main

import (
	"github.com/notargets/femcore/cmd"
	"github.com/notargets/femcore/utils"
)

func main() {
	defer utils.ExitOnFatal()
	cmd.Execute()
}
