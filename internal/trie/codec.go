package trie

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"quickseek/internal/hash"
)

// Shard payload layout:
//
//	magic "QSKT" | version | node | xxhash64(magic..node)
//
// node := flags(1) uvarint(nloc) {uvarint(len) bytes}* uvarint(nchild) {key(1) node}*
//
// Children are written in ascending key order so equal tries encode to equal bytes.
const (
	magic    = "QSKT"
	version  = 1
	maxDepth = 4096

	flagTerminal = 1 << 0
)

var (
	ErrBadMagic    = errors.New("bad magic")
	ErrBadVersion  = errors.New("unsupported version")
	ErrBadChecksum = errors.New("checksum mismatch")
	ErrTooDeep     = errors.New("node nesting too deep")
)

// Marshal encodes t into the shard payload format.
func Marshal(t *Trie) []byte {
	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.WriteByte(version)
	root := t.Root
	if root == nil {
		root = newNode()
	}
	encodeNode(&buf, root)
	buf.Write(hash.Checksum(buf.Bytes()))
	return buf.Bytes()
}

// Encode writes t to w in the shard payload format.
func Encode(w io.Writer, t *Trie) error {
	_, err := w.Write(Marshal(t))
	return err
}

func encodeNode(buf *bytes.Buffer, n *Node) {
	var tmp [binary.MaxVarintLen64]byte
	putUvarint := func(v uint64) {
		buf.Write(tmp[:binary.PutUvarint(tmp[:], v)])
	}

	var flags byte
	if n.Terminal {
		flags |= flagTerminal
	}
	buf.WriteByte(flags)

	putUvarint(uint64(len(n.Locations)))
	for _, loc := range n.Locations {
		putUvarint(uint64(len(loc)))
		buf.WriteString(loc)
	}

	keys := n.Keys()
	putUvarint(uint64(len(keys)))
	for _, k := range keys {
		buf.WriteByte(k)
		encodeNode(buf, n.Children[k])
	}
}

// Unmarshal decodes a shard payload produced by Marshal.
func Unmarshal(data []byte) (*Trie, error) {
	if len(data) < len(magic)+1+8 {
		return nil, fmt.Errorf("payload too short (%d bytes): %w", len(data), io.ErrUnexpectedEOF)
	}
	if string(data[:len(magic)]) != magic {
		return nil, ErrBadMagic
	}
	if data[len(magic)] != version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, data[len(magic)])
	}

	body, sum := data[:len(data)-8], data[len(data)-8:]
	if !bytes.Equal(hash.Checksum(body), sum) {
		return nil, ErrBadChecksum
	}

	r := bytes.NewReader(body[len(magic)+1:])
	root, err := decodeNode(r, 0)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after root node", r.Len())
	}
	return &Trie{Root: root}, nil
}

// Decode reads a whole shard payload from r.
func Decode(r io.Reader) (*Trie, error) {
	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

func decodeNode(r *bytes.Reader, depth int) (*Node, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}

	flags, err := r.ReadByte()
	if err != nil {
		return nil, unexpected(err)
	}
	n := &Node{Terminal: flags&flagTerminal != 0}

	nloc, err := readCount(r)
	if err != nil {
		return nil, err
	}
	if nloc > 0 {
		n.Locations = make([]string, 0, nloc)
	}
	for i := 0; i < nloc; i++ {
		size, err := readCount(r)
		if err != nil {
			return nil, err
		}
		loc := make([]byte, size)
		if _, err := io.ReadFull(r, loc); err != nil {
			return nil, unexpected(err)
		}
		n.Locations = append(n.Locations, string(loc))
	}

	nchild, err := readCount(r)
	if err != nil {
		return nil, err
	}
	if nchild > 256 {
		return nil, fmt.Errorf("node has %d children", nchild)
	}
	if nchild > 0 {
		n.Children = make(map[byte]*Node, nchild)
	}
	for i := 0; i < nchild; i++ {
		key, err := r.ReadByte()
		if err != nil {
			return nil, unexpected(err)
		}
		if _, dup := n.Children[key]; dup {
			return nil, fmt.Errorf("duplicate child key %#x", key)
		}
		child, err := decodeNode(r, depth+1)
		if err != nil {
			return nil, err
		}
		n.Children[key] = child
	}
	return n, nil
}

// readCount reads a uvarint and bounds it by the bytes left in r, so a corrupt
// length cannot trigger a huge allocation.
func readCount(r *bytes.Reader) (int, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, unexpected(err)
	}
	if v > uint64(r.Len()) {
		return 0, fmt.Errorf("length %d exceeds remaining %d bytes: %w", v, r.Len(), io.ErrUnexpectedEOF)
	}
	return int(v), nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
