//go:build !unix

package preflight

import "os"

func checkAccess(path string) error {
	f, err := os.CreateTemp(path, ".audiotagger-check-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
