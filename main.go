package main

import "github.com/rivaleye/pricewatch/cmd"

func main() {
	cmd.Execute()
}
