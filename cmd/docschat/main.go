// docschat is the documentation chat assistant server.
package main

import (
	"fmt"
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/kart-io/docschat/cmd/docschat/app"
)

func main() {
	if err := app.NewServerCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
