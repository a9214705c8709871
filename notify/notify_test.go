package notify

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoop_DoesNothing(t *testing.T) {
	assert.NotPanics(t, func() {
		Noop{}.Notify("cmd", "boom")
	})
}

func TestDiscord_Notify_PostsContentToWebhook(t *testing.T) {
	var mu sync.Mutex
	var gotBody string
	var gotMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotMethod = r.Method
		buf := make([]byte, 4096)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDiscord(server.URL)
	d.Notify("restart-world", "panic: out of bounds")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotBody != ""
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "POST", gotMethod)
	assert.Contains(t, gotBody, "restart-world")
	assert.Contains(t, gotBody, "panic: out of bounds")
}
