package main

import "vorpal/internal/cli"

func main() {
	cli.Execute()
}
