package websocket

import (
	"context"
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wsengine/websocket/internal/test/assert"
)

func TestBadDials(t *testing.T) {
	t.Parallel()

	t.Run("badReq", func(t *testing.T) {
		t.Parallel()

		testCases := []struct {
			name   string
			url    string
			opts   *DialOptions
			nilCtx bool
		}{
			{
				name: "badURL",
				url:  "://noscheme",
			},
			{
				name: "badURLScheme",
				url:  "ftp://example.com",
			},
			{
				name: "clientTimeout",
				url:  "ws://example.com",
				opts: &DialOptions{
					HTTPClient: &http.Client{Timeout: time.Second},
				},
			},
			{
				name:   "nilContext",
				url:    "http://localhost",
				nilCtx: true,
			},
		}

		for _, tc := range testCases {
			tc := tc
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()

				var ctx context.Context
				var cancel func()
				if !tc.nilCtx {
					ctx, cancel = context.WithTimeout(context.Background(), time.Second*5)
					defer cancel()
				}

				_, _, err := dial(ctx, tc.url, tc.opts)
				assert.Error(t, err)
			})
		}
	})

	t.Run("badResponse", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()

		_, resp, err := Dial(ctx, "ws://example.com", &DialOptions{
			HTTPClient: mockHTTPClient(func(*http.Request) (*http.Response, error) {
				return &http.Response{
					Body: io.NopCloser(strings.NewReader("hi")),
				}, nil
			}),
		})
		assert.Contains(t, err, "failed to websocket dial: expected handshake response status code 101 but got 0")

		b, err := io.ReadAll(resp.Body)
		assert.Success(t, err)
		assert.Equal(t, "body", "hi", string(b))
	})

	t.Run("badBody", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()

		rt := func(r *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusSwitchingProtocols,
				Header:     upgradeHeader(r),
				Body:       io.NopCloser(strings.NewReader("hi")),
			}, nil
		}

		_, _, err := Dial(ctx, "ws://example.com", &DialOptions{
			HTTPClient: mockHTTPClient(rt),
		})
		assert.Contains(t, err, "response body is not a io.ReadWriteCloser")
	})
}

func TestDial(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	c1, c2 := net.Pipe()
	defer c2.Close()

	rt := func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "scheme", "http", r.URL.Scheme)
		assert.Equal(t, "version", "13", r.Header.Get("Sec-WebSocket-Version"))
		assert.Equal(t, "custom header", "bar", r.Header.Get("X-Foo"))
		assert.Equal(t, "subprotocols", "chat,echo", r.Header.Get("Sec-WebSocket-Protocol"))

		h := upgradeHeader(r)
		h.Set("Sec-WebSocket-Protocol", "echo")
		return &http.Response{
			StatusCode: http.StatusSwitchingProtocols,
			Header:     h,
			Body:       c1,
		}, nil
	}

	header := http.Header{}
	header.Set("X-Foo", "bar")
	c, resp, err := Dial(ctx, "ws://example.com", &DialOptions{
		HTTPClient:   mockHTTPClient(rt),
		HTTPHeader:   header,
		Subprotocols: []string{"chat", "echo"},
	})
	assert.Success(t, err)
	defer c.Close(StatusAbnormalClosure, "")

	assert.Equal(t, "status", http.StatusSwitchingProtocols, resp.StatusCode)
	assert.Equal(t, "subprotocol", "echo", c.Subprotocol())
	assert.Equal(t, "role", RoleClient, c.role)
	assert.Equal(t, "caller header", "", header.Get("Upgrade"))
}

func upgradeHeader(r *http.Request) http.Header {
	h := http.Header{}
	h.Set("Connection", "Upgrade")
	h.Set("Upgrade", "websocket")
	h.Set("Sec-WebSocket-Accept", secWebSocketAccept(r.Header.Get("Sec-WebSocket-Key")))
	return h
}

func Test_verifyServerResponse(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		response func(w http.ResponseWriter)
		success  bool
	}{
		{
			name: "badStatus",
			response: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusOK)
			},
			success: false,
		},
		{
			name: "badConnection",
			response: func(w http.ResponseWriter) {
				w.Header().Set("Connection", "???")
				w.WriteHeader(http.StatusSwitchingProtocols)
			},
			success: false,
		},
		{
			name: "badUpgrade",
			response: func(w http.ResponseWriter) {
				w.Header().Set("Connection", "Upgrade")
				w.Header().Set("Upgrade", "???")
				w.WriteHeader(http.StatusSwitchingProtocols)
			},
			success: false,
		},
		{
			name: "badSecWebSocketAccept",
			response: func(w http.ResponseWriter) {
				w.Header().Set("Connection", "Upgrade")
				w.Header().Set("Upgrade", "websocket")
				w.Header().Set("Sec-WebSocket-Accept", "xd")
				w.WriteHeader(http.StatusSwitchingProtocols)
			},
			success: false,
		},
		{
			name: "badSecWebSocketProtocol",
			response: func(w http.ResponseWriter) {
				w.Header().Set("Connection", "Upgrade")
				w.Header().Set("Upgrade", "websocket")
				w.Header().Set("Sec-WebSocket-Protocol", "xd")
				w.WriteHeader(http.StatusSwitchingProtocols)
			},
			success: false,
		},
		{
			name: "success",
			response: func(w http.ResponseWriter) {
				w.Header().Set("Connection", "Upgrade")
				w.Header().Set("Upgrade", "websocket")
				w.WriteHeader(http.StatusSwitchingProtocols)
			},
			success: true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			tc.response(w)
			resp := w.Result()

			r := httptest.NewRequest("GET", "/", nil)
			key, err := makeSecWebSocketKey()
			assert.Success(t, err)
			r.Header.Set("Sec-WebSocket-Key", key)

			if resp.Header.Get("Sec-WebSocket-Accept") == "" {
				resp.Header.Set("Sec-WebSocket-Accept", secWebSocketAccept(key))
			}

			err = verifyServerResponse(r, resp)
			if tc.success {
				assert.Success(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func Test_makeSecWebSocketKey(t *testing.T) {
	t.Parallel()

	k1, err := makeSecWebSocketKey()
	assert.Success(t, err)
	k2, err := makeSecWebSocketKey()
	assert.Success(t, err)

	b, err := base64.StdEncoding.DecodeString(k1)
	assert.Success(t, err)
	assert.Equal(t, "key length", 16, len(b))
	if k1 == k2 {
		t.Fatalf("expected distinct keys but got %q twice", k1)
	}
}

func mockHTTPClient(fn roundTripperFunc) *http.Client {
	return &http.Client{
		Transport: fn,
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestDialRedirect(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	_, _, err := Dial(ctx, "ws://example.com", &DialOptions{
		HTTPClient: mockHTTPClient(func(r *http.Request) (*http.Response, error) {
			resp := &http.Response{
				Header: http.Header{},
				Body:   http.NoBody,
			}
			if r.URL.Scheme != "https" {
				resp.Header.Set("Location", "wss://example.com")
				resp.StatusCode = http.StatusFound
				return resp, nil
			}
			resp.Header.Set("Connection", "Upgrade")
			resp.Header.Set("Upgrade", "meow")
			resp.StatusCode = http.StatusSwitchingProtocols
			return resp, nil
		}),
	})
	assert.Contains(t, err, "failed to websocket dial: websocket protocol violation: Upgrade header \"meow\" does not contain websocket")
}
