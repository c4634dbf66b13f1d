package main

import "github.com/fieldlens-tech/fieldlens/cmd/fieldlens/cmd"

func main() {
	cmd.Execute()
}
