package export

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/solarvest/platform/internal/metrics"
	"github.com/solarvest/platform/internal/model"
)

// Header names on notification requests.
const (
	HeaderSignature = "X-Solarvest-Signature"
	HeaderTimestamp = "X-Solarvest-Timestamp"
	HeaderExportID  = "X-Solarvest-Export-Id"
)

const (
	notifyTimeout         = 15 * time.Second
	dialTimeout           = 5 * time.Second
	responseHeaderTimeout = 10 * time.Second
	maxResponseBody       = 4 << 10
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrNotifyRejected   = errors.New("notify endpoint rejected the request")

	ErrInvalidScheme    = errors.New("only HTTPS allowed")
	ErrPrivateIP        = errors.New("private IP addresses not allowed")
	ErrLocalhostBlocked = errors.New("localhost not allowed")
	ErrInvalidURL       = errors.New("invalid URL format")
)

// Sign computes the HMAC-SHA256 of "{timestamp}.{payload}".
func Sign(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a notification signature and rejects timestamps
// further than window from now.
func VerifySignature(secret, signature string, timestamp int64, payload []byte, window time.Duration, now time.Time) error {
	if d := now.Unix() - timestamp; d > int64(window.Seconds()) || -d > int64(window.Seconds()) {
		return ErrInvalidSignature
	}
	if !hmac.Equal([]byte(Sign(secret, timestamp, payload)), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// Notification is the body posted to an export's notify_url.
type Notification struct {
	Event       string             `json:"event"`
	ExportID    string             `json:"export_id"`
	TenantID    string             `json:"tenant_id"`
	ScheduledID string             `json:"scheduled_export_id,omitempty"`
	Name        string             `json:"name,omitempty"`
	ExportType  model.ExportType   `json:"export_type"`
	Format      model.ExportFormat `json:"format"`
	Status      model.ExportStatus `json:"status"`
	RowCount    int64              `json:"row_count"`
	FileURL     string             `json:"file_url,omitempty"`
	Error       string             `json:"error,omitempty"`
	Recipients  []string           `json:"recipients"`
	CompletedAt time.Time          `json:"completed_at"`
}

// NewHTTPClient returns a client with bounded timeouts that does not follow redirects.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: notifyTimeout,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
			TLSHandshakeTimeout:   dialTimeout,
			ResponseHeaderTimeout: responseHeaderTimeout,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Notifier posts signed completion notices. Sends are rate limited across all exports.
type Notifier struct {
	client  *http.Client
	secret  string
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// NewNotifier creates a notifier allowing rps requests per second.
func NewNotifier(client *http.Client, secret string, rps float64, logger *slog.Logger, recorder metrics.Recorder) *Notifier {
	if client == nil {
		client = NewHTTPClient()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if rps <= 0 {
		rps = 5
	}
	return &Notifier{
		client:  client,
		secret:  secret,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger.With("component", "export_notifier"),
		metrics: recorder,
		now:     time.Now,
	}
}

// Notify delivers n to target. Callers log the error; a failed notice does not fail the export.
func (n *Notifier) Notify(ctx context.Context, target string, note Notification) error {
	err := n.send(ctx, target, note)
	status := "sent"
	if err != nil {
		status = "failed"
		n.logger.Warn("export_notification_failed", "export_id", note.ExportID, "host", hostOf(target), "error", err)
	} else {
		n.logger.Debug("export_notification_sent", "export_id", note.ExportID, "host", hostOf(target))
	}
	n.metrics.IncExportNotification(status)
	return err
}

func (n *Notifier) send(ctx context.Context, target string, note Notification) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	ts := n.now().Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Solarvest-Exports/1.0")
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderExportID, note.ExportID)
	if n.secret != "" {
		req.Header.Set(HeaderSignature, "sha256="+Sign(n.secret, ts, payload))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrNotifyRejected, resp.StatusCode)
	}
	return nil
}

var blockedNetworks = func() []*net.IPNet {
	var out []*net.IPNet
	for _, cidr := range []string{
		"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "127.0.0.0/8",
		"169.254.0.0/16", "0.0.0.0/8", "::1/128", "fc00::/7", "fe80::/10",
	} {
		if _, n, err := net.ParseCIDR(cidr); err == nil {
			out = append(out, n)
		}
	}
	return out
}()

// ValidateNotifyURL rejects non-HTTPS targets and hosts on loopback or private ranges.
// Hosts that fail to resolve are accepted and fail at delivery.
func ValidateNotifyURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ErrInvalidURL
	}
	if u.Scheme != "https" {
		return ErrInvalidScheme
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return ErrLocalhostBlocked
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		for _, n := range blockedNetworks {
			if n.Contains(ip) {
				return ErrPrivateIP
			}
		}
	}
	return nil
}

// hostOf keeps paths and query strings out of logs.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(invalid)"
	}
	return u.Host
}
