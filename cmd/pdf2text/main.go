package main

import "github.com/markdave123-py/docchat/cmd/pdf2text/cmd"

func main() {
	cmd.Execute()
}
