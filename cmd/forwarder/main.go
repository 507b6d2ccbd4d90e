package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lamht/forwarder/internal/config"
)

func main() {
	root := buildRoot(os.Stdin, os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// reportError prints err the way operators expect to see it.
func reportError(w io.Writer, err error) {
	var me *config.MissingError
	if errors.As(err, &me) {
		_, _ = fmt.Fprintf(w, "[ENV] Missing %s\n", strings.Join(me.Vars, " or "))
		return
	}
	_, _ = fmt.Fprintln(w, err)
}
