package main

import "github.com/sentinel-project/sentinel/cmd/sentinel/cmd"

func main() {
	cmd.Execute()
}
