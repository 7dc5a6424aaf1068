package main

import (
	"address-distance/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
