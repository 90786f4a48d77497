package web

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-while/go-easyweb/internal/config"
	"github.com/go-while/go-easyweb/internal/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	root := t.TempDir()
	cfg := config.NewDefaultWebConfig()
	cfg.PublicDir = root
	return NewServer(cfg), root
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	name := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0755))
	require.NoError(t, os.WriteFile(name, []byte(content), 0644))
	return name
}

func doRequest(s *Server, method, target string, body string, header http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	s.Router.ServeHTTP(w, req)
	return w
}

func TestServerServesViews(t *testing.T) {
	s, root := newTestServer(t)
	index := writeFile(t, root, "index.html", `<h1>{{.title}}</h1>`)
	writeFile(t, root, "about.html", `About {{.Request.URL.Path}}`)

	s.AddView(index, func(c *gin.Context) (views.Result, error) {
		return views.Data(map[string]any{"title": "Home"}), nil
	})
	s.UseTemplates("")
	s.Use404("")
	s.Router.GET("/about", func(c *gin.Context) {
		c.String(http.StatusOK, "explicit about")
	})

	w := doRequest(s, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<h1>Home</h1>", w.Body.String())
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))

	// explicit routes win over views
	w = doRequest(s, http.MethodGet, "/about", "", nil)
	assert.Equal(t, "explicit about", w.Body.String())

	w = doRequest(s, http.MethodGet, "/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "<h1>404 Page Not Found</h1>", w.Body.String())
}

func TestServerCustomNotFoundPage(t *testing.T) {
	s, root := newTestServer(t)
	writeFile(t, root, "404.html", `nothing at {{.Request.URL.Path}}`)
	s.UseTemplates("")
	s.Use404("")

	w := doRequest(s, http.MethodGet, "/gone", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "nothing at /gone", w.Body.String())
}

func TestServerPrefixMount(t *testing.T) {
	s, root := newTestServer(t)
	writeFile(t, root, "index.html", `app index`)
	s.UseTemplates("/app")
	s.Use404("/app")

	w := doRequest(s, http.MethodGet, "/app", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "app index", w.Body.String())

	w = doRequest(s, http.MethodGet, "/app/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "<h1>404 Page Not Found</h1>", w.Body.String())

	// outside the prefix gin's own 404 answers
	w = doRequest(s, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "404 page not found", w.Body.String())
}

func TestServerRecoversPanics(t *testing.T) {
	s, root := newTestServer(t)
	writeFile(t, root, "500.html", `custom failure`)
	s.Router.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	w := doRequest(s, http.MethodGet, "/boom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "custom failure", w.Body.String())
}

func TestServerRender(t *testing.T) {
	s, root := newTestServer(t)
	tmpl := writeFile(t, root, "mail.html", `Hello {{title .name}}`)

	out, err := s.Render(tmpl, views.Context{"name": "ada lovelace"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada Lovelace", out)
}

func TestUseAtScopesMiddleware(t *testing.T) {
	s, _ := newTestServer(t)
	s.UseAt("/admin", func(c *gin.Context) {
		c.AbortWithStatus(http.StatusForbidden)
	})
	s.Router.GET("/admin/panel", func(c *gin.Context) { c.String(http.StatusOK, "panel") })
	s.Router.GET("/public", func(c *gin.Context) { c.String(http.StatusOK, "public") })

	assert.Equal(t, http.StatusForbidden, doRequest(s, http.MethodGet, "/admin/panel", "", nil).Code)
	w := doRequest(s, http.MethodGet, "/public", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public", w.Body.String())
}

func TestUseSessionRequiresDatabaseAndSecret(t *testing.T) {
	t.Setenv(config.SessionSecretEnvVar, "")
	s, _ := newTestServer(t)
	assert.ErrorIs(t, s.UseSession("secret"), ErrDatabaseRequired)

	require.NoError(t, s.UseDatabase(filepath.Join(t.TempDir(), "app.db")))
	t.Cleanup(func() { s.Close() })
	assert.ErrorIs(t, s.UseSession(""), ErrNoSessionSecret)

	t.Setenv(config.SessionSecretEnvVar, "from-env")
	assert.NoError(t, s.UseSession(""))
}

// startListening runs Listen on a free port and waits until /health answers
func startListening(t *testing.T, s *Server) (base string, cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	s.Router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	errc := make(chan error, 1)
	go func() { errc <- s.Listen(ctx, port) }()

	base = fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	return base, cancel, errc
}

func TestListenShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t)
	_, cancel, done := startListening(t, s)
	assert.True(t, s.isRunning())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(config.ShutdownGracePeriod + 2*time.Second):
		t.Fatal("Listen did not return after cancel")
	}
	assert.False(t, s.isRunning())
}

type getResult struct {
	status int
	body   string
	err    error
}

func getAsync(url string) <-chan getResult {
	out := make(chan getResult, 1)
	go func() {
		// a fresh connection, so a failed request is never retried
		client := &http.Client{
			Timeout:   10 * time.Second,
			Transport: &http.Transport{DisableKeepAlives: true},
		}
		resp, err := client.Get(url)
		if err != nil {
			out <- getResult{err: err}
			return
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		out <- getResult{status: resp.StatusCode, body: string(b), err: err}
	}()
	return out
}

func TestListenLetsInFlightRequestsFinish(t *testing.T) {
	s, _ := newTestServer(t)
	started := make(chan struct{})
	s.Router.GET("/slow", func(c *gin.Context) {
		close(started)
		time.Sleep(300 * time.Millisecond)
		c.String(http.StatusOK, "done")
	})
	base, cancel, done := startListening(t, s)

	res := getAsync(base + "/slow")
	<-started
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(config.ShutdownGracePeriod + 2*time.Second):
		t.Fatal("Listen did not return after cancel")
	}
	r := <-res
	require.NoError(t, r.err)
	assert.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, "done", r.body)
}

func TestListenClosesHangingRequestsAfterGracePeriod(t *testing.T) {
	s, _ := newTestServer(t)
	s.GracePeriod = 200 * time.Millisecond
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	s.Router.GET("/hang", func(c *gin.Context) {
		close(started)
		select {
		case <-release:
		case <-c.Request.Context().Done():
		}
	})
	base, cancel, done := startListening(t, s)

	res := getAsync(base + "/hang")
	<-started
	stopAt := time.Now()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(stopAt), 2*time.Second)
	case <-time.After(3 * time.Second):
		t.Fatal("Listen ignored the grace period")
	}
	assert.False(t, s.isRunning())

	select {
	case r := <-res:
		assert.Error(t, r.err)
	case <-time.After(5 * time.Second):
		t.Fatal("hanging request was not closed")
	}
}
