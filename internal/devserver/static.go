package devserver

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"
)

// clientTag is inserted into every served HTML page.
var clientTag = []byte(`<script src="/__assetpipe/client.js" async></script>`)

type staticHandler struct {
	root  http.FileSystem
	files http.Handler
}

func newStaticHandler(root string) *staticHandler {
	dir := http.Dir(root)
	return &staticHandler{root: dir, files: http.FileServer(dir)}
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")

	name := path.Clean("/" + r.URL.Path)
	if strings.HasSuffix(r.URL.Path, "/") {
		name = path.Join(name, "index.html")
	}
	if !strings.EqualFold(path.Ext(name), ".html") && !strings.EqualFold(path.Ext(name), ".htm") {
		h.files.ServeHTTP(w, r)
		return
	}

	page, modTime, err := h.read(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, errIsDir) {
			h.files.ServeHTTP(w, r)
			return
		}
		http.Error(w, "cannot read "+name, http.StatusInternalServerError)
		return
	}

	body := inject(page)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Last-Modified", modTime.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}

var errIsDir = errors.New("is a directory")

func (h *staticHandler) read(name string) ([]byte, time.Time, error) {
	f, err := h.root.Open(name)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, time.Time{}, err
	}
	if info.IsDir() {
		return nil, time.Time{}, errIsDir
	}
	data, err := io.ReadAll(f)
	return data, info.ModTime(), err
}

var closeBody = []byte("</body>")

// inject places the client tag before the last </body>, or appends it when
// the page has none. The tag is matched on the raw bytes, ASCII case-folded,
// so pages in any encoding keep their offsets.
func inject(page []byte) []byte {
	i := lastCloseBody(page)
	if i < 0 {
		return append(append(page[:len(page):len(page)], '\n'), clientTag...)
	}
	out := make([]byte, 0, len(page)+len(clientTag))
	out = append(out, page[:i]...)
	out = append(out, clientTag...)
	out = append(out, page[i:]...)
	return out
}

func lastCloseBody(page []byte) int {
	for i := len(page) - len(closeBody); i >= 0; i-- {
		if page[i] == '<' && asciiEqualFold(page[i:i+len(closeBody)], closeBody) {
			return i
		}
	}
	return -1
}

func asciiEqualFold(a, b []byte) bool {
	for i := range a {
		x, y := a[i], b[i]
		if 'A' <= x && x <= 'Z' {
			x += 'a' - 'A'
		}
		if x != y {
			return false
		}
	}
	return true
}
