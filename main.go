// ./main.go
package main

import (
	"github.com/xkilldash9x/skilltree/cmd"
)

// main is the entry point for the skilltree CLI.
func main() {
	cmd.Execute()
}
