package main

import "github.com/shiyiawei/EdgeVoiceRAG/cmd"

func main() {
	cmd.Execute()
}
