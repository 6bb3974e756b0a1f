package main

import (
	"os"

	"github.com/mna/mainer"

	"github.com/emberlang/ember/internal/hostcmd"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	c := hostcmd.Cmd{BuildVersion: version, BuildDate: buildDate}
	os.Exit(int(c.Main(os.Args, mainer.CurrentStdio())))
}
