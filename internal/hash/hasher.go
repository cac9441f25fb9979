package hash

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Checksum returns the xxHash64 of data in big-endian byte order.
func Checksum(data []byte) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, xxhash.Sum64(data))
	return buf
}

// VolumeID derives a stable, filesystem-safe directory name for a volume root.
// The readable label keeps index directories recognizable; the hash suffix keeps
// distinct roots with the same label apart.
func VolumeID(root string) string {
	clean := filepath.Clean(root)
	return fmt.Sprintf("%s-%016x", label(clean), xxhash.Sum64String(clean))
}

func label(root string) string {
	var b strings.Builder
	for _, r := range root {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "_"):
			b.WriteByte('_')
		}
		if b.Len() >= 32 {
			break
		}
	}
	s := strings.Trim(b.String(), "_")
	if s == "" {
		return "root"
	}
	return s
}
