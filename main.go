package main

import "m3u8conv/cli"

func main() {
	cli.Execute()
}
