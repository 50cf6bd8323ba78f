package qrgen

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/verdecarbon/biochar_backend/config"
)

// Client wraps the external QR-image generation service. Purely a
// presentation concern; nothing in the workflow depends on the image.
type Client interface {
	GenerateQrImage(ctx context.Context, target string) ([]byte, error)
}

type client struct {
	baseURL    string
	size       string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(logger *logrus.Logger) Client {
	baseURL := strings.TrimSpace(os.Getenv("QR_SERVICE_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.qrserver.com/v1/create-qr-code"
	}
	size := strings.TrimSpace(os.Getenv("QR_IMAGE_SIZE"))
	if size == "" {
		size = "300x300"
	}
	return &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		size:       size,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (c *client) GenerateQrImage(ctx context.Context, target string) ([]byte, error) {
	values := url.Values{}
	values.Set("data", target)
	values.Set("size", c.size)
	values.Set("format", "png")

	endpoint := c.baseURL + "/?" + values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		config.LogError(c.logger, "qrgen/client.go", "GenerateQrImage", "request", target, err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("qr service returned status %d", resp.StatusCode)
		config.LogError(c.logger, "qrgen/client.go", "GenerateQrImage", "status", target, err)
		return nil, err
	}
	return io.ReadAll(resp.Body)
}
