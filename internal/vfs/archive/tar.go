package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/multierr"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/errs"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

type tarArchiver struct {
	base
	compression Compression
}

// Compress writes a tar of the folder to w, compressed as configured
func (a *tarArchiver) Compress(w io.Writer, filter Filter) error {
	path := a.folder.Path().String()
	entries, err := a.collect(filter)
	if err != nil {
		return errs.Storage(errs.OpCompress, path, err)
	}

	out, closeOut, err := compressWriter(w, a.compression)
	if err != nil {
		return errs.Storage(errs.OpCompress, path, err)
	}
	tw := tar.NewWriter(out)
	for _, e := range entries {
		if err = writeTarEntry(tw, e); err != nil {
			break
		}
	}
	err = multierr.Combine(err, tw.Close(), closeOut())
	if err != nil {
		return errs.Storage(errs.OpCompress, path, err)
	}
	return nil
}

func compressWriter(w io.Writer, c Compression) (io.Writer, func() error, error) {
	switch c {
	case CompressionGzip:
		gz := gzip.NewWriter(w)
		return gz, gz.Close, nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, err
		}
		return zw, zw.Close, nil
	}
	return w, func() error { return nil }, nil
}

func writeTarEntry(tw *tar.Writer, e entry) error {
	hdr, err := tar.FileInfoHeader(e.info, "")
	if err != nil {
		return err
	}
	hdr.Name = entryName(e.rel)
	if e.isDir() {
		hdr.Name += "/"
		return tw.WriteHeader(hdr)
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	src, err := os.Open(e.osPath)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(tw, src)
	return err
}

// Extract unpacks a tar stream, plain or gzip/zstd compressed, into the
// folder
func (a *tarArchiver) Extract(r io.Reader, overwrite bool, stripComponents int) error {
	path := a.folder.Path().String()
	f, _, err := spool(r)
	if err != nil {
		return errs.Storage(errs.OpExtract, path, err)
	}
	defer discard(f)

	x := extractor{base: a.base, overwrite: overwrite, strip: stripComponents}
	err = x.run(tarSource{f})
	if errors.Is(err, tar.ErrHeader) || errors.Is(err, gzip.ErrHeader) {
		return errs.New(errs.OpExtract, path, errs.ErrServer, "invalid tar archive: %v", err)
	}
	return errs.Wrap(errs.OpExtract, path, errs.ErrStorage, err)
}

type tarSource struct {
	f *os.File
}

func (s tarSource) entries(fn func(h header, body io.Reader) error) error {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	in, closeIn, err := decompressReader(bufio.NewReader(s.f))
	if err != nil {
		return err
	}
	defer closeIn()

	tr := tar.NewReader(in)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		h := header{name: hdr.Name, mode: hdr.FileInfo().Mode(), modTime: hdr.ModTime}
		switch hdr.Typeflag {
		case tar.TypeDir:
			h.dir = true
			if err := fn(h, nil); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := fn(h, tr); err != nil {
				return err
			}
		}
	}
}

func decompressReader(br *bufio.Reader) (io.Reader, func(), error) {
	magic, _ := br.Peek(len(zstdMagic))
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, err
		}
		return gz, func() { gz.Close() }, nil
	case bytes.HasPrefix(magic, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	}
	return br, func() {}, nil
}
