//go:build !linux

package install

import "fmt"

// reflink has no portable equivalent outside Linux's FICLONE; callers
// fall back to a plain copy.
func reflink(src, dst string) error {
	return fmt.Errorf("install: reflink not supported on this platform")
}
