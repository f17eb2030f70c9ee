package iio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rjboer/GoADI/internal/iioxml"
)

const (
	DefaultSysfsRoot = "/sys/bus/iio/devices"
	DefaultDebugRoot = "/sys/kernel/debug/iio"
)

// FS is the file access a SysfsBackend needs. ReadDir returns entry names with
// a trailing slash on directories. LocalFS and remote.Client implement it.
type FS interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	ReadDir(ctx context.Context, path string) ([]string, error)
}

// LocalFS reads the local filesystem. A non-empty Root is prefixed to every
// path, which lets tests point the backend at a fake sysfs tree.
type LocalFS struct {
	Root string
}

func (l LocalFS) path(p string) string {
	if l.Root == "" {
		return p
	}
	return filepath.Join(l.Root, filepath.FromSlash(p))
}

func (l LocalFS) ReadFile(_ context.Context, p string) ([]byte, error) {
	return os.ReadFile(l.path(p))
}

func (l LocalFS) WriteFile(_ context.Context, p string, data []byte) error {
	f, err := os.OpenFile(l.path(p), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (l LocalFS) ReadDir(_ context.Context, p string) ([]string, error) {
	dir := l.path(p)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		isDir := e.IsDir()
		if e.Type()&fs.ModeSymlink != 0 {
			if st, err := os.Stat(filepath.Join(dir, name)); err == nil {
				isDir = st.IsDir()
			}
		}
		if isDir {
			name += "/"
		}
		names = append(names, name)
	}
	return names, nil
}

// SysfsBackend reads and writes IIO attributes through sysfs files.
type SysfsBackend struct {
	fs        FS
	root      string
	debugRoot string
	closer    func() error
}

// NewSysfsBackend creates a backend over fsys. Empty roots select the kernel defaults.
func NewSysfsBackend(fsys FS, root, debugRoot string) *SysfsBackend {
	if root == "" {
		root = DefaultSysfsRoot
	}
	if debugRoot == "" {
		debugRoot = DefaultDebugRoot
	}
	b := &SysfsBackend{fs: fsys, root: root, debugRoot: debugRoot}
	if c, ok := fsys.(interface{ Close() error }); ok {
		b.closer = c.Close
	}
	return b
}

func (b *SysfsBackend) Close() error {
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

// attrPath maps a Ref to its sysfs file.
func (b *SysfsBackend) attrPath(ref Ref) string {
	switch ref.Kind {
	case ChannelAttr:
		name := ref.Filename
		if name == "" {
			dir := "in"
			if ref.Output {
				dir = "out"
			}
			name = fmt.Sprintf("%s_%s_%s", dir, ref.Channel, ref.Name)
		}
		return path.Join(b.root, ref.Device, name)
	case DebugAttr:
		return path.Join(b.debugRoot, ref.Device, ref.Name)
	case BufferAttr:
		return path.Join(b.root, ref.Device, "buffer", ref.Name)
	default:
		return path.Join(b.root, ref.Device, ref.Name)
	}
}

func (b *SysfsBackend) ReadAttr(ctx context.Context, ref Ref) (string, error) {
	data, err := b.fs.ReadFile(ctx, b.attrPath(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return "", err
	}
	return strings.TrimRight(string(data), "\x00\r\n"), nil
}

func (b *SysfsBackend) WriteAttr(ctx context.Context, ref Ref, value string) error {
	err := b.fs.WriteFile(ctx, b.attrPath(ref), []byte(value))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return err
}

// skipped are device directory entries that are not attributes.
var skipped = map[string]bool{
	"dev": true, "uevent": true, "name": true, "label": true,
	"subsystem": true, "device": true, "of_node": true, "power": true,
}

// XML synthesises a context description by walking the device directories.
func (b *SysfsBackend) XML(ctx context.Context) ([]byte, error) {
	entries, err := b.fs.ReadDir(ctx, b.root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", b.root, err)
	}

	out := &iioxml.Context{Name: "local", Description: "sysfs"}
	for _, entry := range entries {
		id := strings.TrimSuffix(entry, "/")
		if !strings.HasPrefix(id, "iio:device") {
			continue
		}
		dev, err := b.scanDevice(ctx, id)
		if err != nil {
			return nil, err
		}
		out.Device = append(out.Device, dev)
	}
	sort.SliceStable(out.Device, func(i, j int) bool {
		return deviceNumber(out.Device[i].ID) < deviceNumber(out.Device[j].ID)
	})
	return iioxml.Marshal(out)
}

func deviceNumber(id string) int {
	n, _ := strconv.Atoi(strings.TrimPrefix(id, "iio:device"))
	return n
}

func (b *SysfsBackend) readTrimmed(ctx context.Context, p string) string {
	data, err := b.fs.ReadFile(ctx, p)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (b *SysfsBackend) scanDevice(ctx context.Context, id string) (iioxml.Device, error) {
	dir := path.Join(b.root, id)
	dev := iioxml.Device{
		ID:    id,
		Name:  b.readTrimmed(ctx, path.Join(dir, "name")),
		Label: b.readTrimmed(ctx, path.Join(dir, "label")),
	}

	files, err := b.fs.ReadDir(ctx, dir)
	if err != nil {
		return dev, fmt.Errorf("list %s: %w", dir, err)
	}

	var chanFiles []string
	hasScan := false
	hasBuffer := false
	for _, f := range files {
		switch {
		case f == "scan_elements/":
			hasScan = true
		case f == "buffer/":
			hasBuffer = true
		case strings.HasSuffix(f, "/") || skipped[f]:
		case strings.HasPrefix(f, "in_") || strings.HasPrefix(f, "out_"):
			chanFiles = append(chanFiles, f)
		default:
			dev.Attribute = append(dev.Attribute, iioxml.Attribute{Name: f})
		}
	}
	dev.Channel = groupChannels(chanFiles)

	if hasScan {
		b.scanElements(ctx, path.Join(dir, "scan_elements"), &dev)
	}
	if hasBuffer {
		if names, err := b.fs.ReadDir(ctx, path.Join(dir, "buffer")); err == nil {
			for _, n := range names {
				if !strings.HasSuffix(n, "/") {
					dev.BufferAttribute = append(dev.BufferAttribute, iioxml.Attribute{Name: n})
				}
			}
		}
	}
	// debugfs is usually root-only; a missing directory just means no debug attrs.
	if names, err := b.fs.ReadDir(ctx, path.Join(b.debugRoot, id)); err == nil {
		for _, n := range names {
			if !strings.HasSuffix(n, "/") {
				dev.DebugAttribute = append(dev.DebugAttribute, iioxml.Attribute{Name: n})
			}
		}
	}
	return dev, nil
}

// scanElements attaches scan-element formats read from scan_elements/.
func (b *SysfsBackend) scanElements(ctx context.Context, dir string, dev *iioxml.Device) {
	names, err := b.fs.ReadDir(ctx, dir)
	if err != nil {
		return
	}
	for _, n := range names {
		if !strings.HasSuffix(n, "_index") {
			continue
		}
		base := strings.TrimSuffix(n, "_index")
		dirName, chanID, ok := strings.Cut(base, "_")
		if !ok {
			continue
		}
		output := dirName == "out"
		se := &iioxml.ScanElement{
			Index:  b.readTrimmed(ctx, path.Join(dir, n)),
			Format: b.readTrimmed(ctx, path.Join(dir, base+"_type")),
		}
		ch := findChannel(dev, chanID, output)
		if ch == nil {
			typ := "input"
			if output {
				typ = "output"
			}
			dev.Channel = append(dev.Channel, iioxml.Channel{ID: chanID, Type: typ})
			ch = &dev.Channel[len(dev.Channel)-1]
		}
		ch.ScanElement = se
	}
}

func findChannel(dev *iioxml.Device, id string, output bool) *iioxml.Channel {
	for i := range dev.Channel {
		if dev.Channel[i].ID == id && dev.Channel[i].Output() == output {
			return &dev.Channel[i]
		}
	}
	return nil
}

type chanKey struct {
	id     string
	output bool
}

// groupChannels turns in_/out_ attribute files into channels. The first token
// after the direction is the channel id. A token prefix shared by every
// attribute of a channel is its extended name, as in out_altvoltage0_RX_LO_frequency.
// Files whose channel token carries no index (in_voltage_sampling_frequency)
// are shared attributes and are attached to every channel of that type.
func groupChannels(files []string) []iioxml.Channel {
	attrs := map[chanKey][]string{}
	filenames := map[chanKey][]string{}
	var order []chanKey
	type shared struct {
		typ, attr, file string
		output          bool
	}
	var shareds []shared

	for _, f := range files {
		dirName, rest, _ := strings.Cut(f, "_")
		output := dirName == "out"
		id, attr, ok := strings.Cut(rest, "_")
		if !ok {
			continue
		}
		if !hasDigit(id) {
			shareds = append(shareds, shared{typ: id, attr: attr, file: f, output: output})
			continue
		}
		k := chanKey{id, output}
		if _, seen := attrs[k]; !seen {
			order = append(order, k)
		}
		attrs[k] = append(attrs[k], attr)
		filenames[k] = append(filenames[k], f)
	}

	var out []iioxml.Channel
	for _, k := range order {
		typ := "input"
		if k.output {
			typ = "output"
		}
		ch := iioxml.Channel{ID: k.id, Type: typ}
		prefix := commonTokenPrefix(attrs[k])
		if prefix != "" {
			ch.Name = prefix
		}
		for i, a := range attrs[k] {
			name := a
			if prefix != "" {
				name = strings.TrimPrefix(a, prefix+"_")
			}
			ch.Attribute = append(ch.Attribute, iioxml.Attribute{Name: name, Filename: filenames[k][i]})
		}
		for _, s := range shareds {
			if s.output == k.output && channelType(k.id) == s.typ {
				ch.Attribute = append(ch.Attribute, iioxml.Attribute{Name: s.attr, Filename: s.file})
			}
		}
		out = append(out, ch)
	}
	return out
}

func hasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}

// channelType strips the index from a channel id: "voltage0" -> "voltage".
func channelType(id string) string {
	return strings.TrimRight(id, "0123456789-")
}

// commonTokenPrefix returns the underscore-separated prefix shared by every
// attribute, provided each attribute keeps at least one token after it and
// there are at least two attributes.
func commonTokenPrefix(attrs []string) string {
	if len(attrs) < 2 {
		return ""
	}
	first := strings.Split(attrs[0], "_")
	n := len(first) - 1
	for _, a := range attrs[1:] {
		toks := strings.Split(a, "_")
		if len(toks)-1 < n {
			n = len(toks) - 1
		}
		for i := 0; i < n; i++ {
			if toks[i] != first[i] {
				n = i
				break
			}
		}
	}
	if n <= 0 {
		return ""
	}
	return strings.Join(first[:n], "_")
}
