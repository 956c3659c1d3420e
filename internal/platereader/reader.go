package platereader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SmartParkGate/SmartParkGate/internal/common/middleware"
	"github.com/SmartParkGate/SmartParkGate/internal/vehicle"
)

// ErrPlateNotFound 识别服务没有在图片里找到车牌。
var ErrPlateNotFound = errors.New("license plate not found in image")

// Reader 车牌识别协作方接口。
// 识别管线（模型/预处理）是外部服务，这里只拿到规范化车牌或“未找到”。
type Reader interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// HTTPReader 调用外部识别服务的 HTTP 客户端实现。
// 外部服务不稳定是常态，出口套了熔断器，熔断期间图片入场直接失败、人工车牌入场不受影响。
type HTTPReader struct {
	endpoint string
	client   *http.Client
	breaker  *middleware.CircuitBreaker
}

func NewHTTPReader(endpoint string, timeout time.Duration) *HTTPReader {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPReader{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		breaker:  middleware.NewCircuitBreaker("plate-reader", 5, 30*time.Second),
	}
}

type recognizeResponse struct {
	Plate string `json:"plate"`
	Found bool   `json:"found"`
}

// Recognize 把图片交给识别服务，返回规范化车牌。
func (r *HTTPReader) Recognize(ctx context.Context, image []byte) (string, error) {
	if r == nil || r.endpoint == "" {
		return "", fmt.Errorf("plate reader not configured")
	}
	if len(image) == 0 {
		return "", fmt.Errorf("image is empty")
	}

	var out recognizeResponse
	err := r.breaker.Call(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(image))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/octet-stream")

		resp, err := r.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("plate reader returned %d: %s", resp.StatusCode, string(body))
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	if err != nil {
		return "", fmt.Errorf("failed to recognize plate: %w", err)
	}

	if !out.Found || out.Plate == "" {
		return "", ErrPlateNotFound
	}
	return vehicle.NormalizePlate(out.Plate), nil
}
