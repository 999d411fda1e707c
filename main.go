package main

import "github.com/derickschaefer/wxstation/cmd"

func main() {
	cmd.Execute()
}
