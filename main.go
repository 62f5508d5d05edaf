package main

import "github.com/Bastien2203/pi-medias/cmd"

func main() {
	cmd.Execute()
}
