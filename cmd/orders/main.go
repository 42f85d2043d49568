// @title           BookVault Orders API
// @version         1.0
// @description     Order lifecycle and inventory consistency for the BookVault store.
// @host            localhost:8082
// @BasePath        /api/v1
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "orders:", err)
		os.Exit(1)
	}
}
