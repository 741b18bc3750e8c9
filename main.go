package main

import "github.com/jmehdipour/esim-gateway/cmd"

func main() {
	cmd.Execute()
}
