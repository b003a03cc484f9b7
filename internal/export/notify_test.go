package export

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarvest/platform/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSignAndVerify(t *testing.T) {
	t.Parallel()
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"export_id":"exp_1"}`)
	sig := Sign("secret", now.Unix(), payload)

	assert.Len(t, sig, 64)
	assert.NoError(t, VerifySignature("secret", sig, now.Unix(), payload, 5*time.Minute, now))
	assert.ErrorIs(t, VerifySignature("other", sig, now.Unix(), payload, 5*time.Minute, now), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("secret", sig, now.Unix(), []byte(`{}`), 5*time.Minute, now), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("secret", sig, now.Unix(), payload, 5*time.Minute, now.Add(10*time.Minute)), ErrInvalidSignature)
}

func TestNotifierDelivers(t *testing.T) {
	t.Parallel()
	var (
		gotBody []byte
		gotHdr  http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHdr = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rec := metrics.NewInMemory()
	n := NewNotifier(srv.Client(), "s3cret", 100, discardLogger(), rec)
	note := Notification{Event: "export.completed", ExportID: "exp_se1_1", TenantID: "t1", Recipients: []string{"ops@example.com"}}

	require.NoError(t, n.Notify(context.Background(), srv.URL+"/hooks/exports", note))

	assert.Equal(t, "exp_se1_1", gotHdr.Get(HeaderExportID))
	ts, err := strconv.ParseInt(gotHdr.Get(HeaderTimestamp), 10, 64)
	require.NoError(t, err)
	sig := strings.TrimPrefix(gotHdr.Get(HeaderSignature), "sha256=")
	assert.NoError(t, VerifySignature("s3cret", sig, ts, gotBody, time.Minute, time.Now()))

	var decoded Notification
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, []string{"ops@example.com"}, decoded.Recipients)
	assert.Equal(t, uint64(1), rec.Snapshot().ExportNotifications["sent"])
}

func TestNotifierRejected(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	rec := metrics.NewInMemory()
	n := NewNotifier(srv.Client(), "", 100, discardLogger(), rec)

	err := n.Notify(context.Background(), srv.URL, Notification{ExportID: "exp_x"})
	assert.ErrorIs(t, err, ErrNotifyRejected)
	assert.Equal(t, uint64(1), rec.Snapshot().ExportNotifications["failed"])
}

func TestValidateNotifyURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		url  string
		want error
	}{
		{"http://hooks.example.com/x", ErrInvalidScheme},
		{"https://localhost/x", ErrLocalhostBlocked},
		{"https://printer.local/x", ErrLocalhostBlocked},
		{"https://127.0.0.1/x", ErrPrivateIP},
		{"https://10.1.2.3/x", ErrPrivateIP},
		{"::not a url", ErrInvalidURL},
	}
	for _, test := range tests {
		t.Run(test.url, func(t *testing.T) {
			assert.ErrorIs(t, ValidateNotifyURL(test.url), test.want)
		})
	}
}
