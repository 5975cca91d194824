// Command norbertd runs the partitioned RPC server daemon.
package main

import (
	"github.com/deepaksubu/norbert/cmd/norbertd/commands"
)

func main() {
	commands.Execute()
}
