package main

import "github.com/nextcampus/aula/cmd"

func main() {
	cmd.Execute()
}
