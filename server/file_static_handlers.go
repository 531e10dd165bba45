package server

import (
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const indexFile = "index.html"

// staticFiles serves the dashboard from a directory on disk.
type staticFiles struct {
	fsys fs.FS
}

func FileServerHandler(dir string) http.Handler {
	return &staticFiles{fsys: os.DirFS(dir)}
}

func (f *staticFiles) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" || strings.HasSuffix(r.URL.Path, "/") {
		name = path.Join(name, indexFile)
	}
	if err := StreamFile(w, f.fsys, name); err != nil {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("static file not served")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("404 - Page Not Found\n"))
	}
}

// StreamFile writes fileName from fsys with a content type derived from its extension.
func StreamFile(w http.ResponseWriter, fsys fs.FS, fileName string) error {
	if !fs.ValidPath(fileName) {
		return fmt.Errorf("invalid path %s", fileName)
	}
	data, err := fs.ReadFile(fsys, fileName)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", fileName, err)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	ctype := mime.TypeByExtension(ext)
	if ctype == "" {
		// Fallback for unknown extensions
		ctype = http.DetectContentType(data)
	}
	// Ensure UTF-8 for text types when not present
	if strings.HasPrefix(ctype, "text/") && !strings.Contains(strings.ToLower(ctype), "charset=") {
		ctype += "; charset=utf-8"
	}
	w.Header().Set("Content-Type", ctype)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s content: %w", fileName, err)
	}
	return nil
}
