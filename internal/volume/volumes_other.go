//go:build !windows && !linux

package volume

func defaultRoots() []string {
	return []string{"/"}
}
