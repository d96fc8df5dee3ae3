package metadata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
)

// ErrCorrupt is returned when a sidecar cannot be decoded.
var ErrCorrupt = errors.New("corrupt metadata sidecar")

// maxEntryLen bounds a single key or value while decoding.
const maxEntryLen = 1 << 24

// Encode serializes props as a big-endian uint32 count followed by that
// many key/value pairs, each string prefixed with its uint32 byte length.
// Keys are written in sorted order so equal maps encode to equal bytes.
func Encode(props map[string]string) []byte {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	writeUint32(&buf, uint32(len(keys)))
	for _, k := range keys {
		writeString(&buf, k)
		writeString(&buf, props[k])
	}
	return buf.Bytes()
}

// Decode parses the output of Encode.
func Decode(data []byte) (map[string]string, error) {
	r := bytes.NewReader(data)
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	props := make(map[string]string, min(int(count), 64))
	for i := uint32(0); i < count; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readString(r)
		if err != nil {
			return nil, err
		}
		props[k] = v
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, r.Len())
	}
	return props, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	if n > maxEntryLen || int64(n) > int64(r.Len()) {
		return "", fmt.Errorf("%w: entry length %d out of range", ErrCorrupt, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return string(b), nil
}
