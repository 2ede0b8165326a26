// Package gateway provides HTTP clients for the hospital system's
// collaborator APIs: patient directory, medication catalog, prescription
// store and the order submission endpoint. Every call runs through a named
// circuit breaker.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/carelane/go-moc/internal/catalog"
	"github.com/carelane/go-moc/internal/order"
	"github.com/carelane/go-moc/internal/prescription"
	"github.com/carelane/go-moc/pkg/circuitbreaker"
)

// Config holds connection settings for the hospital API.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// DefaultConfig returns defaults for local development.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080",
		Timeout: 10 * time.Second,
	}
}

// Client talks to the hospital API. It implements catalog.PatientSource,
// catalog.MedicationSource, prescription.Store and order.Submitter.
type Client struct {
	config   Config
	http     *http.Client
	breakers *circuitbreaker.Manager
	logger   *zap.Logger
	tracer   trace.Tracer
}

// New creates a client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		config:   cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		breakers: circuitbreaker.NewManager(logger),
		logger:   logger,
		tracer:   otel.Tracer("gateway"),
	}
}

// ListPatients fetches the patient directory.
func (c *Client) ListPatients(ctx context.Context) ([]catalog.Patient, error) {
	var out []catalog.Patient
	if err := c.getJSON(ctx, "patients", "/api/v1/patients", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListMedications fetches the medication catalog.
func (c *Client) ListMedications(ctx context.Context) ([]catalog.Medication, error) {
	var out []catalog.Medication
	if err := c.getJSON(ctx, "medications", "/api/v1/medications", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListUndispensedByPatient fetches the patient's unfulfilled prescriptions.
// The server's ordering is preserved.
func (c *Client) ListUndispensedByPatient(ctx context.Context, patientID int64) ([]prescription.Prescription, error) {
	var out []prescription.Prescription
	path := fmt.Sprintf("/api/v1/patients/%d/prescriptions?dispensed=false", patientID)
	if err := c.getJSON(ctx, "prescriptions", path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateOrder submits a finished payload. Remote rejections come back
// verbatim; the caller keeps the draft for retry.
func (c *Client) CreateOrder(ctx context.Context, payload *order.SubmissionPayload) (*order.Confirmation, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	var conf order.Confirmation
	if err := c.do(ctx, "orders", http.MethodPost, "/api/v1/orders", body, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Client) getJSON(ctx context.Context, breaker, path string, out interface{}) error {
	return c.do(ctx, breaker, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, breakerName, method, path string, body []byte, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, "gateway_"+breakerName,
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
		))
	defer span.End()

	b, err := c.breakers.GetOrCreate(breakerName, circuitbreaker.DefaultConfig(breakerName))
	if err != nil {
		return err
	}

	_, err = b.Execute(ctx, func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.config.APIKey != "" {
			req.Header.Set("X-API-Key", c.config.APIKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, fmt.Errorf("decode response: %w", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		span.RecordError(err)
		c.logger.Warn("collaborator call failed",
			zap.String("collaborator", breakerName),
			zap.String("path", path),
			zap.Error(err))
	}
	return err
}
