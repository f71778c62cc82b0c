// Command oxitopemu serves an emulated OxiTop OC110 data logger on a serial
// port or a websocket serial bridge, so host software can be tested without
// the real unit.
package main

import (
	"context"
	"os"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
