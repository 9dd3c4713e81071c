// Command oauth2d runs the OAuth2 authorization server over a chosen storage backend.
package main

import "os"

// Version can be set during build with -ldflags
var version = "dev"

func main() {
	root := newRootCmd(version)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
