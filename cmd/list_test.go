package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runboat/internal/api"
	"runboat/internal/build"
	"runboat/internal/reconciler"
)

// fakeAPI serves a fixed set of builds the way the controller API does.
func fakeAPI(t *testing.T, builds []build.Status) *httptest.Server {
	t.Helper()

	byID := make(map[string]build.Status, len(builds))
	for _, b := range builds {
		byID[b.ID] = b
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/builds", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.BuildList{Builds: builds})
	})
	mux.HandleFunc("/api/v1/builds/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/builds/")
		id, action, _ := strings.Cut(rest, "/")
		b, ok := byID[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "build not found"})
			return
		}
		if action == "retry" && b.LifecycleState != build.StateFailed {
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "build is not failed"})
			return
		}
		if action != "" {
			w.WriteHeader(http.StatusAccepted)
		}
		_ = json.NewEncoder(w).Encode(b)
	})
	mux.HandleFunc("/api/v1/controller", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.ControllerStatus{
			Running:          true,
			MaxStarted:       2,
			IdleTimeout:      "2h0m0s",
			RetryFailedAfter: "1h0m0s",
			LastPass: &reconciler.PassResult{
				ID:        "pass-1",
				StartedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
				Processed: 3,
				Failed:    map[string]string{"acme-shop-pr-9": "image pull failed"},
				States:    map[build.LifecycleState]int{build.StateStarted: 1, build.StateFailed: 1},
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testBuilds() []build.Status {
	now := time.Now()
	return []build.Status{
		{ID: "acme-shop-pr-9", Repo: "acme/shop", Ref: "pr:9", Target: "main", Commit: "ffff0000", LifecycleState: build.StateFailed, DesiredState: build.DesiredWanted, LastActivityAt: now, LastError: "image pull failed"},
		{ID: "acme-shop-main", Repo: "acme/shop", Ref: "main", Commit: "abcdef1234567890", LifecycleState: build.StateStarted, DesiredState: build.DesiredWanted, LastActivityAt: now},
	}
}

func runCommand(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestListCommand(t *testing.T) {
	srv := fakeAPI(t, testBuilds())

	out, err := runCommand(t, newListCmd(), "--endpoint", srv.URL, "--no-color")
	require.NoError(t, err)

	assert.Contains(t, out, "acme-shop-main")
	assert.Contains(t, out, "acme-shop-pr-9")
	assert.Contains(t, out, "pr:9 (main)")
	assert.Contains(t, out, "abcdef12")
	assert.Less(t, strings.Index(out, "acme-shop-main"), strings.Index(out, "acme-shop-pr-9"))
}

func TestListCommand_StateFilterAndJSON(t *testing.T) {
	srv := fakeAPI(t, testBuilds())

	out, err := runCommand(t, newListCmd(), "--endpoint", srv.URL, "-o", "json", "--state", "failed")
	require.NoError(t, err)

	var builds []build.Status
	require.NoError(t, json.Unmarshal([]byte(out), &builds))
	require.Len(t, builds, 1)
	assert.Equal(t, "acme-shop-pr-9", builds[0].ID)
}

func TestListCommand_UnsupportedFormat(t *testing.T) {
	srv := fakeAPI(t, nil)

	_, err := runCommand(t, newListCmd(), "--endpoint", srv.URL, "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestGetCommand(t *testing.T) {
	srv := fakeAPI(t, testBuilds())

	out, err := runCommand(t, newGetCmd(), "acme-shop-main", "--endpoint", srv.URL, "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "id: acme-shop-main")
	assert.Contains(t, out, "lifecycleState: STARTED")

	_, err = runCommand(t, newGetCmd(), "missing", "--endpoint", srv.URL)
	require.Error(t, err)
	assert.Equal(t, ExitCodeNotFound, getExitCode(err))
}

func TestRetryCommand(t *testing.T) {
	srv := fakeAPI(t, testBuilds())

	out, err := runCommand(t, newRetryCmd(), "acme-shop-pr-9", "--endpoint", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Retry requested for acme-shop-pr-9")

	_, err = runCommand(t, newRetryCmd(), "acme-shop-main", "--endpoint", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build is not failed")
	assert.Equal(t, ExitCodeError, getExitCode(err))
}

func TestActivityCommand(t *testing.T) {
	srv := fakeAPI(t, testBuilds())

	out, err := runCommand(t, newActivityCmd(), "acme-shop-main", "--endpoint", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Activity recorded for acme-shop-main (STARTED)")
}

func TestStatusCommand(t *testing.T) {
	srv := fakeAPI(t, nil)

	out, err := runCommand(t, newStatusCmd(), "--endpoint", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Controller is running")
	assert.Contains(t, out, "2 started builds")
	assert.Contains(t, out, "pass-1 at 2024-05-01 12:00:00")
	assert.Contains(t, out, "FAILED=1 STARTED=1")
	assert.Contains(t, out, "acme-shop-pr-9: image pull failed")
}

func TestCommands_UnreachableController(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	_, err := runCommand(t, newListCmd(), "--endpoint", endpoint)
	require.Error(t, err)
	assert.Equal(t, ExitCodeUnreachable, getExitCode(err))
}
