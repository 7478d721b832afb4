package builder

import (
	"archive/tar"
	"errors"
	"io"
)

// injectFile rewrites a tar stream with one extra regular file appended. An
// existing entry with the same name is dropped so the rendered recipe always
// wins over anything the source tree ships.
func injectFile(src io.ReadCloser, name string, content []byte) io.ReadCloser {
	return rewriteTar(src, name, content, true)
}

// injectFileIfAbsent appends the file only when the stream has no entry with
// that name. Operator-owned files in the source tree win over generated
// defaults.
func injectFileIfAbsent(src io.ReadCloser, name string, content []byte) io.ReadCloser {
	return rewriteTar(src, name, content, false)
}

func rewriteTar(src io.ReadCloser, name string, content []byte, replace bool) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		defer src.Close()
		tw := tar.NewWriter(pw)
		tr := tar.NewReader(src)
		found := false
		for {
			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if hdr.Name == name {
				if replace {
					continue
				}
				found = true
			}
			if err := tw.WriteHeader(hdr); err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := io.Copy(tw, tr); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		if !found {
			hdr := &tar.Header{
				Name: name,
				Mode: 0o644,
				Size: int64(len(content)),
			}
			if err := tw.WriteHeader(hdr); err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := tw.Write(content); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.CloseWithError(tw.Close())
	}()
	return pr
}
