package main

import (
	"fmt"
	"os"
)

func init() {
	initRoot()
	initServe()
	initPing()
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
