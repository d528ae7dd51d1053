package main

import "github.com/KatelynHaworth/csblob/internal/cmd"

func main() {
	cmd.Execute()
}
