// Command solr2osctl is the operator tool for a deployed migration stack.
package main

import "os"

func main() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		os.Exit(1)
	}
}
