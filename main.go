package main

import "github.com/kiesman99/zoomstitch/cmd"

func main() {
	cmd.Execute()
}
