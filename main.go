package main

import "github.com/ValentinKolb/dProof/cmd"

func main() {
	cmd.Execute()
}
