package main

import "stock-predictor/internal/cli"

func main() {
	cli.Execute()
}
