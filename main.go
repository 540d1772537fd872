package main

import "github.com/f3rmion/secema/cmd"

func main() {
	cmd.Execute()
}
