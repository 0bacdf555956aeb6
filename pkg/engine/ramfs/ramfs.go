// Package ramfs is a deliberately simple filesystem engine satisfying the
// engine contract over a block device. It keeps the whole tree in memory and
// writes it back as one checksummed image on sync, close, and unmount.
//
// It stands in for the production log-structured engine in tests and host
// tooling: no copy-on-write, no wear leveling, but the full mount/format/
// file/dir/attr surface, including mount failure with ErrCorrupt on
// unformatted or damaged storage.
package ramfs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/example/flashfs/pkg/block"
	"github.com/example/flashfs/pkg/engine"
)

type node struct {
	typ      engine.EntryType
	data     []byte
	attrs    map[uint8][]byte
	children map[string]*node
}

func newNode(typ engine.EntryType) *node {
	n := &node{typ: typ}
	if typ == engine.TypeDirectory {
		n.children = make(map[string]*node)
	}
	return n
}

// FS implements engine.Engine.
type FS struct {
	dev     *block.Device
	root    *node
	mounted bool
	// imageLen is the serialized size as of the last flush; it backs FSSize.
	imageLen int64
	log      *logrus.Entry
}

var _ engine.Engine = (*FS)(nil)

// New creates an engine over dev. The filesystem is not mounted.
func New(dev *block.Device) *FS {
	return &FS{
		dev: dev,
		log: logrus.WithField("engine", "ramfs"),
	}
}

// Mount implements engine.Engine.
func (fs *FS) Mount() error {
	if fs.mounted {
		return fmt.Errorf("ramfs: mount: already mounted: %w", engine.ErrInval)
	}
	root, imageLen, err := fs.load()
	if err != nil {
		return err
	}
	fs.root = root
	fs.imageLen = imageLen
	fs.mounted = true
	fs.log.Debug("mounted")
	return nil
}

// Unmount implements engine.Engine.
func (fs *FS) Unmount() error {
	if !fs.mounted {
		return fmt.Errorf("ramfs: unmount: not mounted: %w", engine.ErrInval)
	}
	err := fs.flush()
	fs.mounted = false
	fs.root = nil
	return err
}

// Format implements engine.Engine.
func (fs *FS) Format() error {
	if fs.mounted {
		return fmt.Errorf("ramfs: format: still mounted: %w", engine.ErrInval)
	}
	fs.root = newNode(engine.TypeDirectory)
	err := fs.flush()
	fs.root = nil
	if err != nil {
		return err
	}
	fs.log.Debug("formatted")
	return nil
}

// FSSize implements engine.Engine. It reports the number of blocks occupied
// by file data and metadata beyond the superblock, so a freshly formatted
// filesystem reports zero.
func (fs *FS) FSSize() (int64, error) {
	if !fs.mounted {
		return 0, fmt.Errorf("ramfs: fssize: not mounted: %w", engine.ErrInval)
	}
	bs := int64(fs.dev.Geometry().BlockSize)
	blocks := (fs.imageLen + bs - 1) / bs
	if blocks > 0 {
		blocks--
	}
	return blocks, nil
}

// split breaks a path into its segments. Leading, trailing, and repeated
// separators are tolerated; the empty path is the root.
func split(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" && s != "." {
			segs = append(segs, s)
		}
	}
	return segs
}

func (fs *FS) lookup(path string) (*node, error) {
	n := fs.root
	for _, seg := range split(path) {
		if n.typ != engine.TypeDirectory {
			return nil, fmt.Errorf("ramfs: %q: %w", path, engine.ErrNotDir)
		}
		child, ok := n.children[seg]
		if !ok {
			return nil, fmt.Errorf("ramfs: %q: %w", path, engine.ErrNoEnt)
		}
		n = child
	}
	return n, nil
}

// lookupParent resolves the directory containing path and the final name.
func (fs *FS) lookupParent(path string) (*node, string, error) {
	segs := split(path)
	if len(segs) == 0 {
		return nil, "", fmt.Errorf("ramfs: %q: %w", path, engine.ErrInval)
	}
	dir := fs.root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := dir.children[seg]
		if !ok {
			return nil, "", fmt.Errorf("ramfs: %q: %w", path, engine.ErrNoEnt)
		}
		if child.typ != engine.TypeDirectory {
			return nil, "", fmt.Errorf("ramfs: %q: %w", path, engine.ErrNotDir)
		}
		dir = child
	}
	return dir, segs[len(segs)-1], nil
}

func (fs *FS) checkMounted(op string) error {
	if !fs.mounted {
		return fmt.Errorf("ramfs: %s: not mounted: %w", op, engine.ErrInval)
	}
	return nil
}

// Open implements engine.Engine.
func (fs *FS) Open(path string, flags engine.OpenFlags) (engine.File, error) {
	if err := fs.checkMounted("open"); err != nil {
		return nil, err
	}
	parent, name, err := fs.lookupParent(path)
	if err != nil {
		return nil, err
	}
	n, exists := parent.children[name]
	switch {
	case exists && n.typ == engine.TypeDirectory:
		return nil, fmt.Errorf("ramfs: open %q: %w", path, engine.ErrIsDir)
	case exists && flags&engine.OExcl != 0:
		return nil, fmt.Errorf("ramfs: open %q: %w", path, engine.ErrExist)
	case !exists && flags&engine.OCreate == 0:
		return nil, fmt.Errorf("ramfs: open %q: %w", path, engine.ErrNoEnt)
	case !exists:
		n = newNode(engine.TypeRegular)
		parent.children[name] = n
	}
	if flags&engine.OTrunc != 0 {
		n.data = nil
	}
	return &file{fs: fs, n: n, flags: flags}, nil
}

// OpenDir implements engine.Engine.
func (fs *FS) OpenDir(path string) (engine.Dir, error) {
	if err := fs.checkMounted("opendir"); err != nil {
		return nil, err
	}
	n, err := fs.lookup(path)
	if err != nil {
		return nil, err
	}
	if n.typ != engine.TypeDirectory {
		return nil, fmt.Errorf("ramfs: opendir %q: %w", path, engine.ErrNotDir)
	}
	return &dir{n: n, names: dirNames(n)}, nil
}

// Stat implements engine.Engine.
func (fs *FS) Stat(path string) (engine.Info, error) {
	if err := fs.checkMounted("stat"); err != nil {
		return engine.Info{}, err
	}
	n, err := fs.lookup(path)
	if err != nil {
		return engine.Info{}, err
	}
	info := engine.Info{Type: n.typ, Size: int64(len(n.data))}
	if segs := split(path); len(segs) > 0 {
		info.Name = segs[len(segs)-1]
	} else {
		info.Name = "/"
	}
	return info, nil
}

// Remove implements engine.Engine.
func (fs *FS) Remove(path string) error {
	if err := fs.checkMounted("remove"); err != nil {
		return err
	}
	parent, name, err := fs.lookupParent(path)
	if err != nil {
		return err
	}
	n, ok := parent.children[name]
	if !ok {
		return fmt.Errorf("ramfs: remove %q: %w", path, engine.ErrNoEnt)
	}
	if n.typ == engine.TypeDirectory && len(n.children) > 0 {
		return fmt.Errorf("ramfs: remove %q: %w", path, engine.ErrNotEmpty)
	}
	delete(parent.children, name)
	return fs.flush()
}

// Rename implements engine.Engine.
func (fs *FS) Rename(oldPath, newPath string) error {
	if err := fs.checkMounted("rename"); err != nil {
		return err
	}
	oldParent, oldName, err := fs.lookupParent(oldPath)
	if err != nil {
		return err
	}
	n, ok := oldParent.children[oldName]
	if !ok {
		return fmt.Errorf("ramfs: rename %q: %w", oldPath, engine.ErrNoEnt)
	}
	newParent, newName, err := fs.lookupParent(newPath)
	if err != nil {
		return err
	}
	if existing, ok := newParent.children[newName]; ok && existing != n {
		switch {
		case existing.typ == engine.TypeDirectory && n.typ != engine.TypeDirectory:
			return fmt.Errorf("ramfs: rename to %q: %w", newPath, engine.ErrIsDir)
		case existing.typ != engine.TypeDirectory && n.typ == engine.TypeDirectory:
			return fmt.Errorf("ramfs: rename to %q: %w", newPath, engine.ErrNotDir)
		case existing.typ == engine.TypeDirectory && len(existing.children) > 0:
			return fmt.Errorf("ramfs: rename to %q: %w", newPath, engine.ErrNotEmpty)
		}
	}
	delete(oldParent.children, oldName)
	newParent.children[newName] = n
	return fs.flush()
}

// Mkdir implements engine.Engine.
func (fs *FS) Mkdir(path string) error {
	if err := fs.checkMounted("mkdir"); err != nil {
		return err
	}
	parent, name, err := fs.lookupParent(path)
	if err != nil {
		return err
	}
	if _, ok := parent.children[name]; ok {
		return fmt.Errorf("ramfs: mkdir %q: %w", path, engine.ErrExist)
	}
	parent.children[name] = newNode(engine.TypeDirectory)
	return fs.flush()
}

// GetAttr implements engine.Engine.
func (fs *FS) GetAttr(path string, id uint8, buf []byte) (int, error) {
	if err := fs.checkMounted("getattr"); err != nil {
		return 0, err
	}
	n, err := fs.lookup(path)
	if err != nil {
		return 0, err
	}
	val, ok := n.attrs[id]
	if !ok {
		return 0, fmt.Errorf("ramfs: getattr %q id %#x: %w", path, id, engine.ErrNoAttr)
	}
	return copy(buf, val), nil
}

// SetAttr implements engine.Engine.
func (fs *FS) SetAttr(path string, id uint8, data []byte) error {
	if err := fs.checkMounted("setattr"); err != nil {
		return err
	}
	n, err := fs.lookup(path)
	if err != nil {
		return err
	}
	if n.attrs == nil {
		n.attrs = make(map[uint8][]byte)
	}
	n.attrs[id] = append([]byte(nil), data...)
	return fs.flush()
}

// file implements engine.File.
type file struct {
	fs    *FS
	n     *node
	flags engine.OpenFlags
	pos   int64
	dirty bool
}

func (f *file) Read(p []byte) (int, error) {
	if !f.flags.Readable() {
		return 0, fmt.Errorf("ramfs: read: not opened for reading: %w", engine.ErrBadFile)
	}
	if f.pos >= int64(len(f.n.data)) {
		return 0, nil
	}
	n := copy(p, f.n.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *file) Write(p []byte) (int, error) {
	if !f.flags.Writable() {
		return 0, fmt.Errorf("ramfs: write: not opened for writing: %w", engine.ErrBadFile)
	}
	if f.flags&engine.OAppend != 0 {
		f.pos = int64(len(f.n.data))
	}
	end := f.pos + int64(len(p))
	if end > int64(len(f.n.data)) {
		grown := make([]byte, end)
		copy(grown, f.n.data)
		f.n.data = grown
	}
	copy(f.n.data[f.pos:], p)
	f.pos = end
	f.dirty = true
	return len(p), nil
}

func (f *file) Seek(offset int64, whence engine.Whence) (int64, error) {
	var base int64
	switch whence {
	case engine.SeekStart:
		base = 0
	case engine.SeekCur:
		base = f.pos
	case engine.SeekEnd:
		base = int64(len(f.n.data))
	default:
		return 0, fmt.Errorf("ramfs: seek whence %d: %w", whence, engine.ErrInval)
	}
	pos := base + offset
	if pos < 0 {
		return 0, fmt.Errorf("ramfs: seek to %d: %w", pos, engine.ErrInval)
	}
	f.pos = pos
	return pos, nil
}

func (f *file) Sync() error {
	if !f.dirty {
		return nil
	}
	if err := f.fs.flush(); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

func (f *file) Close() error {
	err := f.Sync()
	f.n = nil
	return err
}

// dir implements engine.Dir over a snapshot of names taken at open. Entries
// removed after the snapshot are skipped at read time.
type dir struct {
	n     *node
	names []string
	idx   int
}

func dirNames(n *node) []string {
	names := make([]string, 0, len(n.children)+2)
	names = append(names, ".", "..")
	children := make([]string, 0, len(n.children))
	for name := range n.children {
		children = append(children, name)
	}
	sort.Strings(children)
	return append(names, children...)
}

func (d *dir) Read() (engine.Info, bool, error) {
	for d.idx < len(d.names) {
		name := d.names[d.idx]
		d.idx++
		if name == "." || name == ".." {
			return engine.Info{Name: name, Type: engine.TypeDirectory}, true, nil
		}
		child, ok := d.n.children[name]
		if !ok {
			continue
		}
		return engine.Info{Name: name, Size: int64(len(child.data)), Type: child.typ}, true, nil
	}
	return engine.Info{}, false, nil
}

func (d *dir) Rewind() error {
	d.idx = 0
	return nil
}

func (d *dir) Close() error {
	d.n = nil
	return nil
}
