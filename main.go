package main

import "github.com/kebairia/snapdump/cmd"

func main() {
	cmd.Execute()
}
