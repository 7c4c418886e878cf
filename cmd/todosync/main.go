package main

import "github.com/vietddude/todosync/internal/cli"

func main() {
	cli.Execute()
}
