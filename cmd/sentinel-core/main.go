// Command sentinel-core is the CLI entrypoint for the tool-call sentinel.
package main

import "github.com/sentinelcore/sentinelcore/cmd/sentinel-core/cmd"

func main() {
	cmd.Execute()
}
