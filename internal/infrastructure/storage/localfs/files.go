package localfs

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
)

type jsonWriter struct {
	value  any
	indent bool
}

func (j jsonWriter) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	enc := json.NewEncoder(cw)
	enc.SetEscapeHTML(false)
	if j.indent {
		enc.SetIndent("", "  ")
	}
	err := enc.Encode(j.value)
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// writeFileSync writes src to path, fsyncs it and returns the CRC32 of the
// bytes written.
func writeFileSync(path string, src io.WriterTo) (uint32, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}

	hash := crc32.NewIEEE()
	buf := bufio.NewWriter(io.MultiWriter(f, hash))
	if _, err := src.WriteTo(buf); err != nil {
		f.Close()
		return 0, err
	}
	if err := buf.Flush(); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return hash.Sum32(), nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func readManifest(dir string) (domain.Manifest, error) {
	var m domain.Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Version != ManifestVersion {
		return m, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	return m, nil
}

// verifyFiles reads every artifact named by ArtifactFiles and checks it
// against the manifest checksum. The verified contents are returned.
func verifyFiles(ctx context.Context, dir string, m domain.Manifest) (map[string][]byte, error) {
	out := make(map[string][]byte, len(ArtifactFiles))
	for _, name := range ArtifactFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		want, ok := m.Files[name]
		if !ok {
			return nil, fmt.Errorf("manifest has no checksum for %s", name)
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if got := crc32.ChecksumIEEE(data); got != want {
			return nil, fmt.Errorf("%s checksum mismatch: got %08x, want %08x", name, got, want)
		}
		out[name] = data
	}
	return out, nil
}
