package main

import "github.com/tuanvle/txscope/internal/cli"

func main() {
	cli.Execute()
}
