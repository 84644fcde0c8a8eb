package main

import "github.com/naka-gawa/mrnag/cmd"

func main() {
	cmd.Execute()
}
