package main

import "pkgbridge/internal/cli"

func main() {
	cli.Execute()
}
