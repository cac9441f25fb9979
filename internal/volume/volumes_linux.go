//go:build linux

package volume

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
)

// diskFilesystems are the mount types that hold user files. Pseudo and
// network filesystems are left out.
var diskFilesystems = map[string]bool{
	"ext2": true, "ext3": true, "ext4": true,
	"xfs": true, "btrfs": true, "zfs": true, "f2fs": true,
	"jfs": true, "reiserfs": true, "bcachefs": true,
	"vfat": true, "exfat": true, "ntfs": true, "ntfs3": true,
	"fuseblk": true, "hfsplus": true,
}

func defaultRoots() []string {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return []string{"/"}
	}
	defer f.Close()

	// Bind-mounted files such as /etc/hosts share the disk's fs type.
	var roots []string
	for _, m := range parseMounts(f) {
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			roots = append(roots, m)
		}
	}
	if len(roots) == 0 {
		return []string{"/"}
	}
	return roots
}

// parseMounts extracts disk-backed mount points from /proc/mounts content.
func parseMounts(r io.Reader) []string {
	seen := make(map[string]bool)
	var roots []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || !diskFilesystems[fields[2]] {
			continue
		}
		mount := unescapeMount(fields[1])
		if seen[mount] || strings.HasPrefix(mount, "/boot") || strings.HasPrefix(mount, "/snap/") {
			continue
		}
		seen[mount] = true
		roots = append(roots, mount)
	}
	return roots
}

// unescapeMount decodes the octal escapes (\040 for space and so on) the
// kernel uses in mount paths.
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
