package main

import "direct-chat-backend/cmd"

func main() {
	cmd.Run()
}
