// Command prukaya runs the PRUKaya finance buddy bot and its answer service.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
