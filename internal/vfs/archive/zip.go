package archive

import (
	"io"
	"os"

	"github.com/klauspost/compress/zip"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/errs"
)

type zipArchiver struct {
	base
}

// Compress writes a deflate zip of the folder to w
func (a *zipArchiver) Compress(w io.Writer, filter Filter) error {
	path := a.folder.Path().String()
	entries, err := a.collect(filter)
	if err != nil {
		return errs.Storage(errs.OpCompress, path, err)
	}

	zw := zip.NewWriter(w)
	for _, e := range entries {
		if err := writeZipEntry(zw, e); err != nil {
			zw.Close()
			return errs.Storage(errs.OpCompress, path, err)
		}
	}
	if err := zw.Close(); err != nil {
		return errs.Storage(errs.OpCompress, path, err)
	}
	return nil
}

func writeZipEntry(zw *zip.Writer, e entry) error {
	hdr, err := zip.FileInfoHeader(e.info)
	if err != nil {
		return err
	}
	hdr.Name = entryName(e.rel)
	if e.isDir() {
		hdr.Name += "/"
		hdr.Method = zip.Store
		_, err := zw.CreateHeader(hdr)
		return err
	}
	hdr.Method = zip.Deflate

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	src, err := os.Open(e.osPath)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(dst, src)
	return err
}

// Extract unpacks a zip stream into the folder
func (a *zipArchiver) Extract(r io.Reader, overwrite bool, stripComponents int) error {
	path := a.folder.Path().String()
	f, size, err := spool(r)
	if err != nil {
		return errs.Storage(errs.OpExtract, path, err)
	}
	defer discard(f)

	zr, err := zip.NewReader(f, size)
	if zr == nil {
		return errs.New(errs.OpExtract, path, errs.ErrServer, "invalid zip archive: %v", err)
	}
	// entry names are validated by the extractor, so an insecure path
	// report from the reader is not fatal here
	x := extractor{base: a.base, overwrite: overwrite, strip: stripComponents}
	return errs.Wrap(errs.OpExtract, path, errs.ErrStorage, x.run(zipSource{zr}))
}

type zipSource struct {
	zr *zip.Reader
}

func (s zipSource) entries(fn func(h header, body io.Reader) error) error {
	for _, zf := range s.zr.File {
		info := zf.FileInfo()
		h := header{name: zf.Name, dir: info.IsDir(), mode: info.Mode(), modTime: zf.Modified}
		if h.dir {
			if err := fn(h, nil); err != nil {
				return err
			}
			continue
		}
		if err := s.entry(zf, h, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s zipSource) entry(zf *zip.File, h header, fn func(h header, body io.Reader) error) error {
	body, err := zf.Open()
	if err != nil {
		return err
	}
	defer body.Close()
	return fn(h, body)
}
