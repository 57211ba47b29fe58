package main

import "github.com/maastricht-university/truth-detector/cli"

func main() {
	cli.Execute()
}
