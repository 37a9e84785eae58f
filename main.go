package main

import "github.com/dayuer/chatgw/cmd"

func main() {
	cmd.Execute()
}
