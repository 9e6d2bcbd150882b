package main

import "github.com/ashfaque/local-search-in-scanned-pdf/internal/cli"

func main() {
	cli.Execute()
}
