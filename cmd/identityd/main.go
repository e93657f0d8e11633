package main

import "github.com/goliatone/go-identity/cmd/identityd/cmd"

func main() {
	cmd.Execute()
}
