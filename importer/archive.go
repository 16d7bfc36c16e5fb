package importer

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrUnsupportedArchive = fmt.Errorf("archive is neither zip nor tar")
var ErrUnsafePath = fmt.Errorf("archive entry escapes the destination")

// Extract unpacks a zip archive, or failing that a tar archive (optionally
// gzip compressed), into dest.
func Extract(archive string, dest string) error {
	if err := os.MkdirAll(dest, os.FileMode(0755)); err != nil {
		return errors.WithStack(err)
	}
	err := extractZip(archive, dest)
	if err == nil {
		return nil
	}
	if !errors.Is(err, zip.ErrFormat) {
		return err
	}
	log.WithField("archive", archive).Debug("not a zip archive, trying tar")
	return extractTar(archive, dest)
}

func extractZip(archive string, dest string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()
	for _, f := range r.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, os.FileMode(0755)); err != nil {
				return errors.WithStack(err)
			}
			continue
		}
		if !f.Mode().IsRegular() {
			log.Debugf("skipping non-regular zip entry %s", f.Name)
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return errors.WithStack(err)
		}
		err = writeFile(target, rc, f.Mode().Perm())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTar(archive string, dest string) error {
	f, err := os.Open(archive)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	magic, _ := r.(*bufio.Reader).Peek(2)
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return errors.Wrap(ErrUnsupportedArchive, err.Error())
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	for entries := 0; ; entries++ {
		hdr, err := tr.Next()
		if err == io.EOF && entries > 0 {
			return nil
		}
		if err != nil {
			if entries == 0 {
				return errors.Wrap(ErrUnsupportedArchive, err.Error())
			}
			return errors.WithStack(err)
		}
		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(0755)); err != nil {
				return errors.WithStack(err)
			}
		case tar.TypeReg, tar.TypeRegA:
			if err := writeFile(target, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		default:
			log.Debugf("skipping tar entry %s of type %v", hdr.Name, hdr.Typeflag)
		}
	}
}

func safeJoin(dest string, name string) (string, error) {
	target := filepath.Join(dest, name)
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(name) {
		return "", errors.Wrap(ErrUnsafePath, name)
	}
	return target, nil
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), os.FileMode(0755)); err != nil {
		return errors.WithStack(err)
	}
	if perm&0600 != 0600 {
		perm |= 0600
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return errors.WithStack(err)
}

// copyFile copies a regular file, overwriting dst.
func copyFile(src string, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.WithStack(err)
	}
	defer in.Close()
	fi, err := in.Stat()
	if err != nil {
		return errors.WithStack(err)
	}
	return writeFile(dst, in, fi.Mode().Perm())
}
