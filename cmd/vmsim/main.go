// Command vmsim runs simulated processes against the virtual memory manager.
package main

import "github.com/sarchlab/vmcore/cmd/vmsim/cmd"

func main() {
	cmd.Execute()
}
