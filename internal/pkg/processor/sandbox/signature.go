package sandbox

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"parcelmarket/internal/pkg/processor"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac-sha256 of "<t>.<payload>">".
const SignatureHeader = "X-Sandbox-Signature"

const signatureTolerance = 5 * time.Minute

func Sign(secret string, payload []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + computeMAC(secret, ts, payload)
}

func computeMAC(secret, ts string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Sandbox) verify(payload []byte, header string) error {
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return processor.ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return processor.ErrInvalidSignature
	}
	age := s.now().Sub(time.Unix(unix, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", processor.ErrInvalidSignature)
	}
	want := computeMAC(s.cfg.WebhookSecret, ts, payload)
	if !hmac.Equal([]byte(want), []byte(v1)) {
		return processor.ErrInvalidSignature
	}
	return nil
}

func (s *Sandbox) ParseEvent(payload []byte, signature string) (*processor.Event, error) {
	if err := s.verify(payload, signature); err != nil {
		return nil, err
	}
	var evt processor.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", processor.ErrMalformedEvent, err)
	}
	return &evt, nil
}

// HTTPDelivery posts events to the API's webhook endpoint, like the real processor would.
func HTTPDelivery(url string, client *http.Client, log *zap.Logger) Deliver {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return func(payload []byte, signature string) {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			log.Error("build webhook request", zap.Error(err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(SignatureHeader, signature)
		resp, err := client.Do(req)
		if err != nil {
			log.Warn("deliver sandbox webhook", zap.String("url", url), zap.Error(err))
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			log.Warn("sandbox webhook rejected", zap.Int("status", resp.StatusCode))
		}
	}
}
