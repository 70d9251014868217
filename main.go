package main

import "github.com/ValentinKolb/dLV/cmd"

func main() {
	cmd.Execute()
}
