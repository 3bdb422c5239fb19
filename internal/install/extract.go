package install

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// archiveRoot is the top-level directory of python-build-standalone
// install_only archives.
const archiveRoot = "python/"

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Extractor unpacks runtime archives.
type Extractor struct {
	// StripPrefix is removed from every member name; members outside it are
	// rejected.
	StripPrefix string
}

// NewExtractor creates an extractor for python-build-standalone archives.
func NewExtractor() *Extractor {
	return &Extractor{StripPrefix: archiveRoot}
}

// Extract unpacks a .tar.gz or .tar.zst archive into destDir. The compression
// is detected from the file header, not the name.
func (e *Extractor) Extract(archivePath, destDir string) error {
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	br := bufio.NewReader(archiveFile)
	magic, _ := br.Peek(4)

	var r io.Reader
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		gzipReader, err := gzip.NewReader(br)
		if err != nil {
			return fmt.Errorf("create gzip reader: %w", err)
		}
		defer gzipReader.Close()
		r = gzipReader
	case bytes.HasPrefix(magic, zstdMagic):
		zstdReader, err := zstd.NewReader(br)
		if err != nil {
			return fmt.Errorf("create zstd reader: %w", err)
		}
		defer zstdReader.Close()
		r = zstdReader
	default:
		return fmt.Errorf("unsupported archive format: %s", filepath.Base(archivePath))
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	return e.extractTar(tar.NewReader(r), filepath.Clean(destDir))
}

// extractTar writes every member through an os.Root on destDir, so a path
// that resolves outside it, including through symlinks created by earlier
// members, fails instead of escaping.
func (e *Extractor) extractTar(tarReader *tar.Reader, destDir string) error {
	root, err := os.OpenRoot(destDir)
	if err != nil {
		return fmt.Errorf("open dest dir: %w", err)
	}
	defer root.Close()

	var links []string
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return checkLinks(destDir, links)
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		rel, ok := e.memberPath(header.Name)
		if !ok {
			return fmt.Errorf("unexpected archive member %s (want %s*)", header.Name, e.StripPrefix)
		}
		if rel == "" {
			continue
		}

		target := filepath.Join(destDir, filepath.FromSlash(rel))
		if !within(destDir, target) {
			return fmt.Errorf("illegal file path: %s", header.Name)
		}
		name := filepath.FromSlash(rel)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := root.MkdirAll(name, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", rel, err)
			}

		case tar.TypeReg:
			if err := mkdirParent(root, name); err != nil {
				return fmt.Errorf("create parent dir for %s: %w", rel, err)
			}

			// Drop setuid/setgid/sticky bits.
			mode := os.FileMode(header.Mode).Perm()
			outFile, err := root.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
			if err != nil {
				return fmt.Errorf("create file %s: %w", rel, err)
			}

			if _, err := io.Copy(outFile, tarReader); err != nil {
				outFile.Close()
				return fmt.Errorf("write file %s: %w", rel, err)
			}
			if err := outFile.Close(); err != nil {
				return fmt.Errorf("close file %s: %w", rel, err)
			}

		case tar.TypeSymlink:
			if filepath.IsAbs(header.Linkname) {
				return fmt.Errorf("illegal absolute symlink %s -> %s", header.Name, header.Linkname)
			}
			resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(header.Linkname))
			if !within(destDir, resolved) {
				return fmt.Errorf("illegal symlink %s -> %s escapes archive root", header.Name, header.Linkname)
			}
			if err := mkdirParent(root, name); err != nil {
				return fmt.Errorf("create parent dir for %s: %w", rel, err)
			}
			if err := root.Symlink(header.Linkname, name); err != nil {
				return fmt.Errorf("create symlink %s: %w", rel, err)
			}
			links = append(links, name)

		case tar.TypeLink:
			linkRel, ok := e.memberPath(header.Linkname)
			if !ok || linkRel == "" {
				return fmt.Errorf("illegal hard link %s -> %s", header.Name, header.Linkname)
			}
			if !within(destDir, filepath.Join(destDir, filepath.FromSlash(linkRel))) {
				return fmt.Errorf("illegal hard link %s -> %s escapes archive root", header.Name, header.Linkname)
			}
			if err := mkdirParent(root, name); err != nil {
				return fmt.Errorf("create parent dir for %s: %w", rel, err)
			}
			if err := root.Link(filepath.FromSlash(linkRel), name); err != nil {
				return fmt.Errorf("create hard link %s: %w", rel, err)
			}

		default:
			// Skip other types (char devices, block devices, etc.)
			continue
		}
	}
}

func mkdirParent(root *os.Root, name string) error {
	dir := filepath.Dir(name)
	if dir == "." {
		return nil
	}
	return root.MkdirAll(dir, 0o755)
}

// maxLinkDepth bounds symlink resolution, as the kernel's ELOOP limit does.
const maxLinkDepth = 40

// checkLinks resolves every extracted symlink against the finished tree.
// A target can look contained as text yet leave destDir through another
// link, e.g. "x -> a/.." next to "a -> .".
func checkLinks(destDir string, links []string) error {
	for _, name := range links {
		parent, err := resolveWithin(destDir, destDir, filepath.Dir(name), 0)
		if err != nil {
			return fmt.Errorf("illegal symlink %s: %w", name, err)
		}
		link := filepath.Join(parent, filepath.Base(name))
		target, err := os.Readlink(link)
		if err != nil {
			return fmt.Errorf("read symlink %s: %w", name, err)
		}
		if _, err := resolveWithin(destDir, parent, target, 0); err != nil {
			return fmt.Errorf("illegal symlink %s -> %s: %w", name, target, err)
		}
	}
	return nil
}

// resolveWithin walks rel from cur one component at a time, following
// symlinks that exist on disk, and fails as soon as the walk leaves root.
// Missing components are taken literally.
func resolveWithin(root, cur, rel string, depth int) (string, error) {
	if depth > maxLinkDepth {
		return "", fmt.Errorf("too many levels of symbolic links")
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
			if !within(root, cur) {
				return "", fmt.Errorf("escapes archive root")
			}
			continue
		}

		next := filepath.Join(cur, part)
		info, err := os.Lstat(next)
		if err != nil || info.Mode()&os.ModeSymlink == 0 {
			cur = next
			continue
		}
		target, err := os.Readlink(next)
		if err != nil {
			return "", err
		}
		if filepath.IsAbs(target) {
			return "", fmt.Errorf("absolute link %s", target)
		}
		if cur, err = resolveWithin(root, cur, target, depth+1); err != nil {
			return "", err
		}
	}
	return cur, nil
}

// memberPath strips the archive root from name. It returns "" for the root
// itself.
func (e *Extractor) memberPath(name string) (string, bool) {
	name = strings.TrimPrefix(name, "./")
	if e.StripPrefix == "" {
		return path.Clean(name), true
	}
	if name == strings.TrimSuffix(e.StripPrefix, "/") {
		return "", true
	}
	rel, ok := strings.CutPrefix(name, e.StripPrefix)
	if !ok {
		return "", false
	}
	rel = strings.TrimSuffix(rel, "/")
	if rel == "" {
		return "", true
	}
	return rel, true
}

// within reports whether target is destDir or below it.
func within(destDir, target string) bool {
	target = filepath.Clean(target)
	return target == destDir || strings.HasPrefix(target, destDir+string(os.PathSeparator))
}
