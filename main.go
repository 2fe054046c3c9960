package main

import "visca-camera/cmd"

func main() {
	cmd.Execute()
}
