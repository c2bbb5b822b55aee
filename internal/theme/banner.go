package theme

import (
	"fmt"
)

// Banner returns the threadsmith startup banner.
func Banner() string {
	const cyan = "\033[36m"
	const yellow = "\033[33m"
	const reset = "\033[0m"

	art := "" +
		"  🧵 " + cyan + "THREADSMITH" + reset + "\n" +
		yellow + "  ────────────────────────────────\n" + reset +
		"  bookmarks in, full threads out\n"
	return art
}

// PrintBanner prints the banner to stdout.
func PrintBanner() {
	fmt.Print(Banner())
}
