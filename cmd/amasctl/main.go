// Command amasctl is the operator CLI for the AMAS decision engine.
package main

import "github.com/tutu-network/tutu/internal/cli"

func main() {
	cli.Execute()
}
