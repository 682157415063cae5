package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/devrev/securegpx/internal/errors"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps coded errors onto their gRPC status code so scripts can
// tell a broken chain from a missing file
func exitCode(err error) int {
	var gerr *errors.GPXError
	if stderrors.As(err, &gerr) {
		if code := int(gerr.ToGRPCStatus().Code()); code != 0 {
			return code
		}
	}
	return 1
}
