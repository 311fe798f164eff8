package main

import "github.com/toolwarden/toolwarden/internal/cli"

func main() {
	cli.Execute()
}
