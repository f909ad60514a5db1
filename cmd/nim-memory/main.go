// Command nim-memory stores and searches agent memories from the shell and
// serves them to agents over a websocket.
package main

import "github.com/becomeliminal/nim-memory/internal/cli"

func main() {
	cli.Execute()
}
