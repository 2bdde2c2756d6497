// Command dinnermatch matches Friday night dinner guests with hosts.
package main

import "github.com/roach88/dinnermatch/internal/cli"

func main() {
	cli.Main()
}
