package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/marianozunino/gatedrop/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClient struct {
	t    *testing.T
	base string
}

type upload struct {
	filename string
	content  []byte
	fields   url.Values
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func (c *testClient) do(method, path, token string, body io.Reader, header http.Header) *http.Response {
	req, err := http.NewRequest(method, c.base+path, body)
	require.NoError(c.t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (c *testClient) json(method, path, token string, payload any) (*http.Response, map[string]any) {
	var body io.Reader
	header := http.Header{}
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(c.t, err)
		body = bytes.NewReader(data)
		header.Set("Content-Type", "application/json")
	}
	resp := c.do(method, path, token, body, header)
	return resp, decodeBody(c.t, resp)
}

func (c *testClient) login(email, password string) string {
	resp, body := c.json(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(c.t, http.StatusOK, resp.StatusCode, body)
	return body["accessToken"].(string)
}

func (c *testClient) upload(token string, u upload) (*http.Response, map[string]any) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for key, values := range u.fields {
		for _, v := range values {
			require.NoError(c.t, w.WriteField(key, v))
		}
	}
	part, err := w.CreateFormFile("file", u.filename)
	require.NoError(c.t, err)
	_, err = part.Write(u.content)
	require.NoError(c.t, err)
	require.NoError(c.t, w.Close())

	header := http.Header{}
	header.Set("Content-Type", w.FormDataContentType())
	resp := c.do(http.MethodPost, "/api/files/upload", token, &buf, header)
	return resp, decodeBody(c.t, resp)
}

// uploadFile uploads and returns the id of the created file
func (c *testClient) uploadFile(token string, u upload) string {
	resp, body := c.upload(token, u)
	require.Equal(c.t, http.StatusCreated, resp.StatusCode, body)
	return body["file"].(map[string]any)["id"].(string)
}

func (c *testClient) download(id, token, password string) (*http.Response, string) {
	header := http.Header{}
	if password != "" {
		header.Set("X-File-Password", password)
	}
	resp := c.do(http.MethodGet, "/api/files/"+id+"/download", token, nil, header)
	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, string(data)
}

func errorCode(t *testing.T, raw string) string {
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &body), raw)
	code, _ := body["code"].(string)
	return code
}

func forEachBackend(t *testing.T, fn func(t *testing.T, c *testClient, clk interface{ Advance(time.Duration) })) {
	for _, backend := range []string{config.BackendMemory, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			server, clk, cleanup := setupTestApp(t, backend)
			defer cleanup()
			fn(t, &testClient{t: t, base: server.URL}, clk)
		})
	}
}

func TestPublicFileAnonymousDownload(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *testClient, _ interface{ Advance(time.Duration) }) {
		alice := c.login("alice@example.com", "alice-password")
		id := c.uploadFile(alice, upload{
			filename: "hello.txt",
			content:  []byte("Hello, World!"),
			fields:   url.Values{"isPublic": {"true"}},
		})

		resp, body := c.download(id, "", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Hello, World!", body)
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "hello.txt")

		resp = c.do(http.MethodGet, "/api/files/"+id+"/preview", "", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "inline")

		_, stats := c.json(http.MethodGet, "/api/files/stats/"+id, alice, nil)
		statistics := stats["statistics"].(map[string]any)
		assert.Equal(t, float64(1), statistics["downloadCount"])
		assert.Equal(t, float64(0), statistics["uniqueDownloaders"])

		_, history := c.json(http.MethodGet, "/api/files/download-history/"+id, alice, nil)
		entries := history["history"].([]any)
		require.Len(t, entries, 1)
		assert.Nil(t, entries[0].(map[string]any)["downloader"])
	})
}

func TestWhitelistedFile(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *testClient, _ interface{ Advance(time.Duration) }) {
		alice := c.login("alice@example.com", "alice-password")
		bob := c.login("bob@example.com", "bob-password")
		carol := c.login("carol@example.com", "carol-password")

		id := c.uploadFile(alice, upload{
			filename: "plan.txt",
			content:  []byte("the plan"),
			fields:   url.Values{"isPublic": {"true"}, "sharedWith": {"bob@example.com"}},
		})

		resp, body := c.download(id, bob, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "the plan", body)

		resp, body = c.download(id, carol, "")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "FORBIDDEN", errorCode(t, body))
		assert.Contains(t, body, "You are not in the shared list")

		resp, body = c.download(id, "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHORIZED", errorCode(t, body))

		resp, _ = c.download(id, alice, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		_, stats := c.json(http.MethodGet, "/api/files/stats/"+id, alice, nil)
		statistics := stats["statistics"].(map[string]any)
		assert.Equal(t, float64(2), statistics["downloadCount"])
		assert.Equal(t, float64(2), statistics["uniqueDownloaders"])
	})
}

func TestPrivateFileOwnerOnly(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *testClient, _ interface{ Advance(time.Duration) }) {
		alice := c.login("alice@example.com", "alice-password")
		admin := c.login("admin@example.com", "admin-password")

		id := c.uploadFile(alice, upload{filename: "diary.txt", content: []byte("dear diary")})

		resp, body := c.download(id, admin, "")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Contains(t, body, "Private file")

		resp, _ = c.download(id, alice, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		// admins manage files they cannot download
		resp, details := c.json(http.MethodGet, "/api/files/info/"+id, admin, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		file := details["file"].(map[string]any)
		assert.Equal(t, "alice@example.com", file["ownerEmail"])
		assert.NotContains(t, file, "password")
	})
}

func TestAnonymousPrivateUploadRejected(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *testClient, _ interface{ Advance(time.Duration) }) {
		resp, body := c.upload("", upload{filename: "x.txt", content: []byte("x")})

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHORIZED", body["code"])
	})
}

func TestPasswordProtectedFile(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *testClient, _ interface{ Advance(time.Duration) }) {
		id := c.uploadFile("", upload{
			filename: "vault.txt",
			content:  []byte("gold"),
			fields:   url.Values{"isPublic": {"true"}, "password": {"s3cret!"}},
		})

		resp, body := c.download(id, "", "")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "PASSWORD_REQUIRED", errorCode(t, body))

		resp, body = c.download(id, "", "wrong-pass")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "INCORRECT_PASSWORD", errorCode(t, body))

		resp, body = c.download(id, "", "s3cret!")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "gold", body)

		resp = c.do(http.MethodGet, "/api/files/"+id+"/download?password="+url.QueryEscape("s3cret!"), "", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		_, info := c.json(http.MethodGet, "/api/files/"+id, "", nil)
		file := info["file"].(map[string]any)
		assert.Equal(t, true, file["hasPassword"])
		assert.NotContains(t, file, "password")
	})
}

func TestShortPasswordRejected(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *testClient, _ interface{ Advance(time.Duration) }) {
		resp, body := c.upload("", upload{
			filename: "a.txt",
			content:  []byte("a"),
			fields:   url.Values{"isPublic": {"true"}, "password": {"abc"}},
		})

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_ERROR", body["code"])
		assert.Equal(t, float64(6), body["minLength"])
	})
}

func TestPendingFile(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *testClient, clk interface{ Advance(time.Duration) }) {
		alice := c.login("alice@example.com", "alice-password")
		from := testNow.Add(48 * time.Hour).Format(time.RFC3339)

		id := c.uploadFile(alice, upload{
			filename: "launch.txt",
			content:  []byte("announcement"),
			fields:   url.Values{"isPublic": {"true"}, "availableFrom": {from}},
		})

		resp, body := c.download(id, "", "")
		assert.Equal(t, http.StatusLocked, resp.StatusCode)
		var denial map[string]any
		require.NoError(t, json.Unmarshal([]byte(body), &denial))
		assert.Equal(t, "NOT_YET_AVAILABLE", denial["code"])
		assert.Equal(t, float64(48), denial["hoursUntilAvailable"])

		resp, _ = c.download(id, alice, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		_, available := c.json(http.MethodGet, "/api/files/available", "", nil)
		assert.Empty(t, available["files"])

		clk.Advance(49 * time.Hour)

		resp, _ = c.download(id, "", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		_, available = c.json(http.MethodGet, "/api/files/available", "", nil)
		assert.Len(t, available["files"], 1)
	})
}

func TestExpiredFileAndCleanup(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *testClient, clk interface{ Advance(time.Duration) }) {
		alice := c.login("alice@example.com", "alice-password")
		admin := c.login("admin@example.com", "admin-password")

		id := c.uploadFile(alice, upload{
			filename: "old.txt",
			content:  []byte("stale"),
			fields:   url.Values{"isPublic": {"true"}, "availableTo": {"24"}},
		})

		clk.Advance(25 * time.Hour)

		resp, body := c.download(id, alice, "")
		assert.Equal(t, http.StatusGone, resp.StatusCode)
		assert.Equal(t, "EXPIRED", errorCode(t, body))

		resp, info := c.json(http.MethodGet, "/api/files/"+id, "", nil)
		assert.Equal(t, http.StatusGone, resp.StatusCode)
		assert.Contains(t, info, "expiredAt")

		resp = c.do(http.MethodGet, "/f/"+id, "", nil, nil)
		assert.Equal(t, http.StatusGone, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

		resp, _ = c.json(http.MethodPost, "/api/admin/cleanup", alice, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp, result := c.json(http.MethodPost, "/api/admin/cleanup", admin, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(1), result["deletedFiles"])

		resp, _ = c.json(http.MethodGet, "/api/files/"+id, "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestPolicyLimitsUploadSize(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *testClient, _ interface{ Advance(time.Duration) }) {
		admin := c.login("admin@example.com", "admin-password")
		alice := c.login("alice@example.com", "alice-password")

		resp, _ := c.json(http.MethodGet, "/api/admin/policy", alice, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp, body := c.json(http.MethodPatch, "/api/admin/policy", admin, map[string]int{"maxFileSizeMB": 1})
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		assert.Equal(t, float64(1), body["policy"].(map[string]any)["maxFileSizeMB"])
		assert.Equal(t, float64(7), body["policy"].(map[string]any)["defaultValidityDays"])

		resp, body = c.upload(alice, upload{
			filename: "big.bin",
			content:  bytes.Repeat([]byte{0xAB}, (1<<20)+512),
			fields:   url.Values{"isPublic": {"true"}},
		})
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
		assert.Equal(t, "PAYLOAD_TOO_LARGE", body["code"])
		assert.Equal(t, float64(1), body["maxFileSizeMB"])

		resp, body = c.json(http.MethodPatch, "/api/admin/policy", admin, map[string]int{"defaultValidityDays": 90})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_ERROR", body["code"])
	})
}

func TestMyFilesListing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *testClient, clk interface{ Advance(time.Duration) }) {
		alice := c.login("alice@example.com", "alice-password")

		for i := 0; i < 3; i++ {
			c.uploadFile(alice, upload{filename: fmt.Sprintf("file-%d.txt", i), content: []byte("x")})
			clk.Advance(time.Minute)
		}
		c.uploadFile(alice, upload{
			filename: "later.txt",
			content:  []byte("x"),
			fields:   url.Values{"availableFrom": {"5"}},
		})

		resp, body := c.json(http.MethodGet, "/api/files/my?limit=2&sortBy=fileName&order=asc", alice, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)

		files := body["files"].([]any)
		require.Len(t, files, 2)
		assert.Equal(t, "file-0.txt", files[0].(map[string]any)["fileName"])

		pagination := body["pagination"].(map[string]any)
		assert.Equal(t, float64(4), pagination["totalFiles"])
		assert.Equal(t, float64(2), pagination["totalPages"])

		summary := body["summary"].(map[string]any)
		assert.Equal(t, float64(3), summary["activeFiles"])
		assert.Equal(t, float64(1), summary["pendingFiles"])

		resp, body = c.json(http.MethodGet, "/api/files/my?status=pending", alice, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, body["files"], 1)

		resp, body = c.json(http.MethodGet, "/api/files/my?status=bogus", alice, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = c.json(http.MethodGet, "/api/files/my?page=0", alice, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = c.json(http.MethodGet, "/api/files/my", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestDeleteFile(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *testClient, _ interface{ Advance(time.Duration) }) {
		alice := c.login("alice@example.com", "alice-password")
		bob := c.login("bob@example.com", "bob-password")

		id := c.uploadFile(alice, upload{filename: "bye.txt", content: []byte("bye"), fields: url.Values{"isPublic": {"yes"}}})

		resp, _ := c.json(http.MethodDelete, "/api/files/info/"+id, bob, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp, body := c.json(http.MethodDelete, "/api/files/info/"+id, alice, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, id, body["fileId"])

		resp, _ = c.download(id, "", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestAuthFlow(t *testing.T) {
	server, _, cleanup := setupTestApp(t, config.BackendMemory)
	defer cleanup()
	c := &testClient{t: t, base: server.URL}

	resp, body := c.json(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "dave", "email": "dave@example.com", "password": "dave-password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.NotEmpty(t, body["userId"])

	resp, body = c.json(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "dave2", "email": "dave@example.com", "password": "dave-password",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", body["code"])

	resp, _ = c.json(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "dave@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token := c.login("dave@example.com", "dave-password")

	resp, body = c.json(http.MethodGet, "/api/user", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "dave", body["user"].(map[string]any)["username"])
	assert.Equal(t, "user", body["user"].(map[string]any)["role"])

	resp, _ = c.json(http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = c.json(http.MethodGet, "/api/user", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSharePage(t *testing.T) {
	server, _, cleanup := setupTestApp(t, config.BackendMemory)
	defer cleanup()
	c := &testClient{t: t, base: server.URL}

	id := c.uploadFile("", upload{filename: "notes.txt", content: []byte("plain text notes"), fields: url.Values{"isPublic": {"1"}}})

	resp := c.do(http.MethodGet, "/f/"+id, "", nil, nil)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(data), "notes.txt"))
	assert.Contains(t, string(data), "/api/files/"+id+"/download")
	assert.Contains(t, string(data), "/api/files/"+id+"/preview")

	resp = c.do(http.MethodGet, "/f/does-not-exist", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadResponseCarriesShareLink(t *testing.T) {
	server, _, cleanup := setupTestApp(t, config.BackendMemory)
	defer cleanup()
	c := &testClient{t: t, base: server.URL}

	alice := c.login("alice@example.com", "alice-password")
	resp, body := c.upload(alice, upload{
		filename: "link.txt",
		content:  []byte("x"),
		fields:   url.Values{"sharedWith": {"bob@example.com, carol@example.com", "bob@example.com"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	assert.Equal(t, true, body["success"])
	file := body["file"].(map[string]any)
	assert.Equal(t, "http://localhost:8080/f/"+file["id"].(string), file["shareLink"])
	assert.ElementsMatch(t, []any{"bob@example.com", "carol@example.com"}, file["sharedWith"])
	assert.Equal(t, "alice@example.com", file["owner"].(map[string]any)["email"])
	assert.Equal(t, "text/plain; charset=utf-8", file["mimeType"])
}
