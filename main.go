// The main package for the resultscraper executable.
package main

import (
	"github.com/JakeFAU/usn-result-scraper/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
