package main

import "github.com/vibepruner/vibepruner/internal/cli"

func main() {
	cli.Execute()
}
