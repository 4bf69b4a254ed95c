package main

import "gaswindow/internal/cli"

func main() {
	cli.Execute()
}
