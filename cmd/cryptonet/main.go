package main

import "github.com/prividentity/cryptonet-go/internal/cli"

func main() {
	cli.Execute()
}
