package main

import "github.com/MeKo-Tech/pbrgen/internal/cmd"

func main() {
	cmd.Execute()
}
