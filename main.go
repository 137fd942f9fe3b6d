package main

import "github.com/workfin/finance-core/cmd"

func main() {
	cmd.Execute()
}
