package main

import "pothole-detector/internal/cli"

func main() {
	cli.Execute()
}
