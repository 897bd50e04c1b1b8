// Command moji is a private, local journal with automatic backups.
package main

import "github.com/mesh-intelligence/moji/internal/cli"

func main() {
	cli.Execute()
}
