package main

import "github.com/ppiankov/factorwatch/internal/cli"

func main() {
	cli.Execute()
}
