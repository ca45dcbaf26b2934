package main

import "github.com/bayesline/mcfit/cmd"

// TODO: additional built-in models (the CLI currently only fits the Gaussian)

func main() {
	cmd.Execute()
}
