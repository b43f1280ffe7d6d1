// Command mkext2fs formats a file or block device as an ext2 volume and,
// optionally, copies a host directory tree onto it.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/mprimi/ext2fs/backend/file"
	"github.com/mprimi/ext2fs/filesystem/ext2"
	"github.com/mprimi/ext2fs/sync"
)

func main() {
	var (
		size          int64
		blockSize     uint
		label         string
		sourceDir     string
		preserveAtime bool
	)
	flag.Int64Var(&size, "size", 16*1024*1024, "size in bytes of the image to create")
	flag.UintVar(&blockSize, "block-size", 1024, "block size: 1024, 2048, or 4096")
	flag.StringVar(&label, "label", "", "volume label")
	flag.StringVar(&sourceDir, "from", "", "host directory to copy onto the new volume")
	flag.BoolVar(&preserveAtime, "preserve-atime", false, "preserve host file access times when copying (requires -from)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: mkext2fs [flags] <image-path>")
		os.Exit(2)
	}
	imagePath := flag.Arg(0)

	if err := run(imagePath, size, uint32(blockSize), label, sourceDir, preserveAtime); err != nil {
		fmt.Fprintf(os.Stderr, "mkext2fs: %v\n", err)
		os.Exit(1)
	}
}

func run(imagePath string, size int64, blockSize uint32, label, sourceDir string, preserveAtime bool) error {
	backing, err := file.CreateFromPath(imagePath, size)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	defer func() { _ = backing.Close() }()

	fsys, err := ext2.Create(backing, size, &ext2.FormatOptions{
		BlockSize:  blockSize,
		VolumeName: label,
	})
	if err != nil {
		return fmt.Errorf("format: %w", err)
	}

	if sourceDir == "" {
		return nil
	}

	// preserveAtime only changes whether sync.CopyFileSystem's host-atime
	// lookup (golang.org/x/sys on unix, syscall on windows) is exercised;
	// the copy always calls Chtimes, this flag just decides what atime value
	// feeds it versus falling back to mtime.
	var src fs.FS = os.DirFS(sourceDir)
	if !preserveAtime {
		src = noAtimeFS{src}
	}
	return sync.CopyFileSystem(src, fsys)
}

// noAtimeFS strips Sys() from FileInfo so sync.CopyFileSystem's atime
// lookup falls back to mtime, used when -preserve-atime is not set.
type noAtimeFS struct {
	fs.FS
}

func (n noAtimeFS) Open(name string) (fs.File, error) {
	f, err := n.FS.Open(name)
	if err != nil {
		return nil, err
	}
	return noAtimeFile{f}, nil
}

type noAtimeFile struct {
	fs.File
}

func (f noAtimeFile) Stat() (fs.FileInfo, error) {
	info, err := f.File.Stat()
	if err != nil {
		return nil, err
	}
	return noAtimeInfo{info}, nil
}

type noAtimeInfo struct {
	fs.FileInfo
}

func (noAtimeInfo) Sys() interface{} { return nil }
