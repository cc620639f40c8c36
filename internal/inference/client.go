// Package inference talks to the remote drowsiness detection service.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oszuidwest/drowsiguard/internal/types"
	"github.com/oszuidwest/drowsiguard/internal/util"
)

const (
	detectPath = "/api/drive/detect"
	healthPath = "/api/drive/health"

	// DefaultTimeout bounds one detect request so a hung call cannot pin the busy flag.
	DefaultTimeout = 5 * time.Second
	// DefaultConfidence is the detection threshold sent with every frame.
	DefaultConfidence = 0.35
	// DefaultImageSize is the model input size sent with every frame.
	DefaultImageSize = 320

	// maxResponseBytes caps how much of a detect response is read.
	maxResponseBytes = 1 << 20
)

// ErrBusy is returned when a request is already in flight.
var ErrBusy = errors.New("inference request already in flight")

// Options configures a Client.
type Options struct {
	BaseURL       string
	Timeout       time.Duration
	HealthTimeout time.Duration
	Confidence    float64
	ImageSize     int
}

// Result is the outcome of one detect call. Frame is only meaningful when OK is true.
type Result struct {
	OK      bool
	Frame   types.DetectionFrame
	Err     error
	Latency time.Duration
}

// Client sends frames to the detection service. At most one detect call is
// in flight at any time; overlapping calls fail fast with ErrBusy.
type Client struct {
	baseURL       string
	conf          float64
	imgsz         int
	healthTimeout time.Duration
	httpClient    *http.Client

	busy atomic.Bool
}

// NewClient creates a client for the service at opts.BaseURL.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	healthTimeout := opts.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = timeout
	}
	conf := opts.Confidence
	if conf <= 0 {
		conf = DefaultConfidence
	}
	imgsz := opts.ImageSize
	if imgsz <= 0 {
		imgsz = DefaultImageSize
	}
	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		conf:          conf,
		imgsz:         imgsz,
		healthTimeout: healthTimeout,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// Busy reports whether a detect call is currently in flight.
func (c *Client) Busy() bool {
	return c.busy.Load()
}

// Infer sends one JPEG frame and returns the parsed detection frame.
// It never blocks behind another call: if one is running, it returns ErrBusy.
func (c *Client) Infer(ctx context.Context, jpeg []byte) Result {
	if !c.busy.CompareAndSwap(false, true) {
		return Result{Err: ErrBusy}
	}
	defer c.busy.Store(false)

	start := time.Now()
	frame, err := c.detect(ctx, jpeg)
	latency := time.Since(start)
	if err != nil {
		return Result{Err: err, Latency: latency}
	}
	return Result{OK: true, Frame: frame, Latency: latency}
}

func (c *Client) detect(ctx context.Context, jpeg []byte) (types.DetectionFrame, error) {
	body, contentType, err := c.encodeForm(jpeg)
	if err != nil {
		return types.DetectionFrame{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+detectPath, body)
	if err != nil {
		return types.DetectionFrame{}, util.WrapError("create detect request", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.DetectionFrame{}, util.WrapError("send detect request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "detect response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.DetectionFrame{}, fmt.Errorf("detect returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var dr detectResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&dr); err != nil {
		return types.DetectionFrame{}, util.WrapError("decode detect response", err)
	}
	return dr.toFrame(), nil
}

func (c *Client) encodeForm(jpeg []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("image", "frame.jpg")
	if err != nil {
		return nil, "", util.WrapError("create image part", err)
	}
	if _, err := part.Write(jpeg); err != nil {
		return nil, "", util.WrapError("write image part", err)
	}
	if err := w.WriteField("conf", strconv.FormatFloat(c.conf, 'f', -1, 64)); err != nil {
		return nil, "", util.WrapError("write conf field", err)
	}
	if err := w.WriteField("imgsz", strconv.Itoa(c.imgsz)); err != nil {
		return nil, "", util.WrapError("write imgsz field", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", util.WrapError("close multipart writer", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// Health probes the service. Any 2xx response means ready.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, http.NoBody)
	if err != nil {
		return util.WrapError("create health request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return util.WrapError("reach inference backend", err)
	}
	defer util.SafeCloseFunc(resp.Body, "health response body")()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("inference backend health returned status %d", resp.StatusCode)
	}
	return nil
}
