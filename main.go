// main.go - Application entry point
package main

import "github.com/valpere/r4c-viewport/cmd"

func main() {
	cmd.Execute()
}
