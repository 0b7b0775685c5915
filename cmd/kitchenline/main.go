package main

import "github.com/vietddude/kitchenline/internal/cli"

func main() {
	cli.Execute()
}
