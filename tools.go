//go:build tools

package paisley

import (
	_ "golang.org/x/tools/cmd/goimports"
)
