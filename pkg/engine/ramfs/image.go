package ramfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/example/flashfs/pkg/engine"
)

// On-flash image layout: a fixed header at block 0 followed by the payload,
// both laid out contiguously across blocks.
//
//	[0:4]   magic "RFS1"
//	[4:8]   format version
//	[8:16]  payload length
//	[16:20] CRC-32 (IEEE) of the payload
//	[20:]   payload
const (
	imageVersion = 1
	headerSize   = 20
)

var imageMagic = [4]byte{'R', 'F', 'S', '1'}

// Payload encoding, little endian throughout:
//
//	node     := type u8, nattrs u8, attr*, file | dir
//	attr     := id u8, len u16, bytes
//	file     := len u64, bytes
//	dir      := count u32, (namelen u16, name, node)*
func encodeNode(buf *bytes.Buffer, n *node) {
	buf.WriteByte(byte(n.typ))
	buf.WriteByte(byte(len(n.attrs)))
	// Attribute order must be deterministic for stable images.
	for id := 0; id < 256; id++ {
		val, ok := n.attrs[uint8(id)]
		if !ok {
			continue
		}
		buf.WriteByte(uint8(id))
		binary.Write(buf, binary.LittleEndian, uint16(len(val)))
		buf.Write(val)
	}
	if n.typ == engine.TypeRegular {
		binary.Write(buf, binary.LittleEndian, uint64(len(n.data)))
		buf.Write(n.data)
		return
	}
	binary.Write(buf, binary.LittleEndian, uint32(len(n.children)))
	for _, name := range sortedChildren(n) {
		binary.Write(buf, binary.LittleEndian, uint16(len(name)))
		buf.WriteString(name)
		encodeNode(buf, n.children[name])
	}
}

func sortedChildren(n *node) []string {
	names := dirNames(n)
	return names[2:] // strip "." and ".."
}

type decoder struct {
	buf *bytes.Reader
}

func (d *decoder) corrupt(what string) error {
	return fmt.Errorf("ramfs: image: truncated %s: %w", what, engine.ErrCorrupt)
}

func (d *decoder) node() (*node, error) {
	typ, err := d.buf.ReadByte()
	if err != nil {
		return nil, d.corrupt("node type")
	}
	if engine.EntryType(typ) != engine.TypeRegular && engine.EntryType(typ) != engine.TypeDirectory {
		return nil, fmt.Errorf("ramfs: image: bad node type %#x: %w", typ, engine.ErrCorrupt)
	}
	n := newNode(engine.EntryType(typ))
	nattrs, err := d.buf.ReadByte()
	if err != nil {
		return nil, d.corrupt("attr count")
	}
	for i := 0; i < int(nattrs); i++ {
		id, err := d.buf.ReadByte()
		if err != nil {
			return nil, d.corrupt("attr id")
		}
		var alen uint16
		if err := binary.Read(d.buf, binary.LittleEndian, &alen); err != nil {
			return nil, d.corrupt("attr length")
		}
		val := make([]byte, alen)
		if _, err := io.ReadFull(d.buf, val); err != nil {
			return nil, d.corrupt("attr value")
		}
		if n.attrs == nil {
			n.attrs = make(map[uint8][]byte)
		}
		n.attrs[id] = val
	}
	if n.typ == engine.TypeRegular {
		var dlen uint64
		if err := binary.Read(d.buf, binary.LittleEndian, &dlen); err != nil {
			return nil, d.corrupt("file length")
		}
		if dlen > uint64(d.buf.Len()) {
			return nil, d.corrupt("file data")
		}
		n.data = make([]byte, dlen)
		if _, err := io.ReadFull(d.buf, n.data); err != nil {
			return nil, d.corrupt("file data")
		}
		return n, nil
	}
	var count uint32
	if err := binary.Read(d.buf, binary.LittleEndian, &count); err != nil {
		return nil, d.corrupt("entry count")
	}
	for i := uint32(0); i < count; i++ {
		var nlen uint16
		if err := binary.Read(d.buf, binary.LittleEndian, &nlen); err != nil {
			return nil, d.corrupt("name length")
		}
		if nlen == 0 {
			return nil, d.corrupt("name")
		}
		name := make([]byte, nlen)
		if _, err := io.ReadFull(d.buf, name); err != nil {
			return nil, d.corrupt("name")
		}
		child, err := d.node()
		if err != nil {
			return nil, err
		}
		n.children[string(name)] = child
	}
	return n, nil
}

// load reads and validates the image, returning the decoded tree and the
// total image size in bytes.
func (fs *FS) load() (*node, int64, error) {
	header := make([]byte, headerSize)
	if err := fs.readSpan(0, header); err != nil {
		return nil, 0, fmt.Errorf("ramfs: read superblock: %w", err)
	}
	if !bytes.Equal(header[0:4], imageMagic[:]) {
		return nil, 0, fmt.Errorf("ramfs: no filesystem signature: %w", engine.ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint32(header[4:8]); v != imageVersion {
		return nil, 0, fmt.Errorf("ramfs: unsupported image version %d: %w", v, engine.ErrCorrupt)
	}
	plen := binary.LittleEndian.Uint64(header[8:16])
	wantCRC := binary.LittleEndian.Uint32(header[16:20])
	if plen > uint64(fs.dev.Geometry().TotalBytes()-headerSize) {
		return nil, 0, fmt.Errorf("ramfs: payload length %d exceeds device: %w", plen, engine.ErrCorrupt)
	}
	payload := make([]byte, plen)
	if err := fs.readSpan(headerSize, payload); err != nil {
		return nil, 0, fmt.Errorf("ramfs: read payload: %w", err)
	}
	if crc := crc32.ChecksumIEEE(payload); crc != wantCRC {
		return nil, 0, fmt.Errorf("ramfs: payload checksum %#x, want %#x: %w", crc, wantCRC, engine.ErrCorrupt)
	}
	dec := decoder{buf: bytes.NewReader(payload)}
	root, err := dec.node()
	if err != nil {
		return nil, 0, err
	}
	if root.typ != engine.TypeDirectory {
		return nil, 0, fmt.Errorf("ramfs: root is not a directory: %w", engine.ErrCorrupt)
	}
	return root, headerSize + int64(plen), nil
}

// flush serializes the tree and writes it back to the device.
func (fs *FS) flush() error {
	var payload bytes.Buffer
	encodeNode(&payload, fs.root)

	image := make([]byte, headerSize+payload.Len())
	copy(image[0:4], imageMagic[:])
	binary.LittleEndian.PutUint32(image[4:8], imageVersion)
	binary.LittleEndian.PutUint64(image[8:16], uint64(payload.Len()))
	binary.LittleEndian.PutUint32(image[16:20], crc32.ChecksumIEEE(payload.Bytes()))
	copy(image[headerSize:], payload.Bytes())

	geom := fs.dev.Geometry()
	if int64(len(image)) > geom.TotalBytes() {
		return fmt.Errorf("ramfs: image %d bytes exceeds device %d: %w",
			len(image), geom.TotalBytes(), engine.ErrNoSpace)
	}
	blocks := (uint32(len(image)) + geom.BlockSize - 1) / geom.BlockSize
	for blk := uint32(0); blk < blocks; blk++ {
		if err := fs.dev.Erase(blk); err != nil {
			return fmt.Errorf("ramfs: erase block %d: %w: %v", blk, engine.ErrIO, err)
		}
	}
	if err := fs.progSpan(0, image); err != nil {
		return err
	}
	if err := fs.dev.Sync(); err != nil {
		return fmt.Errorf("ramfs: sync: %w: %v", engine.ErrIO, err)
	}
	fs.imageLen = int64(len(image))
	return nil
}

// readSpan reads a contiguous byte range that may cross block boundaries.
func (fs *FS) readSpan(off int64, dst []byte) error {
	bs := int64(fs.dev.Geometry().BlockSize)
	for len(dst) > 0 {
		blk := uint32(off / bs)
		boff := uint32(off % bs)
		n := int(bs - int64(boff))
		if n > len(dst) {
			n = len(dst)
		}
		if err := fs.dev.Read(blk, boff, dst[:n]); err != nil {
			return fmt.Errorf("%w: %v", engine.ErrIO, err)
		}
		dst = dst[n:]
		off += int64(n)
	}
	return nil
}

// progSpan programs a contiguous byte range that may cross block boundaries.
// The covered blocks must already be erased.
func (fs *FS) progSpan(off int64, data []byte) error {
	bs := int64(fs.dev.Geometry().BlockSize)
	for len(data) > 0 {
		blk := uint32(off / bs)
		boff := uint32(off % bs)
		n := int(bs - int64(boff))
		if n > len(data) {
			n = len(data)
		}
		if err := fs.dev.Prog(blk, boff, data[:n]); err != nil {
			return fmt.Errorf("%w: %v", engine.ErrIO, err)
		}
		data = data[n:]
		off += int64(n)
	}
	return nil
}
