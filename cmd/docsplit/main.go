package main

import "github.com/MeKo-Tech/docsplit/cmd/docsplit/cmd"

func main() {
	cmd.Execute()
}
