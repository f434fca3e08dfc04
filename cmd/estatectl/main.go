// Command estatectl runs maintenance tasks against an estate database.
package main

import "github.com/garnizeh/estate/cmd/estatectl/commands"

func main() {
	commands.Execute()
}
