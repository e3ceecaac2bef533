package main

import "github.com/vietddude/txmonitor/internal/cli"

func main() {
	cli.Execute()
}
