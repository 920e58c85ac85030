package main

import "github.com/frahmantamala/payment-lifecycle/cmd"

func main() {
	cmd.Execute()
}
