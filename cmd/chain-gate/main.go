package main

import "github.com/chain-gate/chaingate/cmd/chain-gate/cmd"

func main() {
	cmd.Execute()
}
