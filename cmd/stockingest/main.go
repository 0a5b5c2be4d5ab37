package main

import (
	"stock-data-ingest/internal/cli"
)

func main() {
	cli.Execute()
}
