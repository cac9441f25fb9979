//go:build windows

package volume

import "os"

// defaultRoots lists the drive letters that currently have a filesystem.
func defaultRoots() []string {
	var roots []string
	for c := 'A'; c <= 'Z'; c++ {
		root := string(c) + `:\`
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			roots = append(roots, root)
		}
	}
	return roots
}
