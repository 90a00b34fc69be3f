// Package webhook turns inbound change notifications into sync operations.
//
// Every system that sends webhooks is configured with a signing secret and
// the gjson paths of the tenant, entity kind and record id in its payload.
// A verified notification is enqueued right away; duplicate deliveries are
// absorbed by queue coalescing.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stacklok/crmsync/internal/clock"
	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/entity"
	"github.com/stacklok/crmsync/internal/sync/queue"
	"github.com/stacklok/crmsync/internal/sync/records"
	"github.com/stacklok/crmsync/internal/sync/state"
	"github.com/stacklok/crmsync/internal/telemetry"
)

const (
	defaultTenantPath = "tenantId"
	defaultKindPath   = "kind"
	defaultIDPath     = "id"

	signaturePrefix = "sha256="
)

var (
	// ErrUnknownSystem is returned for a system without webhook configuration
	ErrUnknownSystem = errors.New("unknown webhook system")

	// ErrUnknownTenant is returned when the payload names a tenant that is not registered
	ErrUnknownTenant = errors.New("unknown tenant")

	// ErrUnauthenticated is returned when the signature is missing or wrong
	ErrUnauthenticated = errors.New("invalid webhook signature")

	// ErrMalformed is returned when the payload cannot be mapped to an entity
	ErrMalformed = errors.New("malformed webhook payload")
)

// Delivery results reported to metrics
const (
	resultAccepted  = "accepted"
	resultCoalesced = "coalesced"
	resultRejected  = "rejected"
)

// Result describes the operation a notification was enqueued as
type Result struct {
	OperationID string `json:"operationId"`
	Coalesced   bool   `json:"coalesced"`
}

// Ingestor validates notifications and enqueues them
//
//go:generate mockgen -destination=mocks/mock_ingestor.go -package=mocks github.com/stacklok/crmsync/internal/webhook Ingestor
type Ingestor interface {
	// Ingest verifies and normalizes one notification from system and enqueues it
	Ingest(ctx context.Context, system string, headers http.Header, body []byte) (*Result, error)
}

// Source describes how notifications from one system are verified and read
type Source struct {
	System          string
	Secret          []byte
	SignatureHeader string
	TenantPath      string
	KindPath        string
	IDPath          string
	KindMap         map[string]entity.Kind
}

// NewSource builds a Source from configuration, reading the signing secret
func NewSource(cfg config.WebhookConfig) (Source, error) {
	secret, err := cfg.GetSecret()
	if err != nil {
		return Source{}, fmt.Errorf("webhook %s: %w", cfg.System, err)
	}

	kindMap := make(map[string]entity.Kind, len(cfg.KindMap))
	for vendor, name := range cfg.KindMap {
		kind, err := entity.ParseKind(name)
		if err != nil {
			return Source{}, fmt.Errorf("webhook %s: kindMap[%s]: %w", cfg.System, vendor, err)
		}
		kindMap[vendor] = kind
	}

	return Source{
		System:          cfg.System,
		Secret:          []byte(secret),
		SignatureHeader: cfg.GetSignatureHeader(),
		TenantPath:      cfg.TenantPath,
		KindPath:        cfg.KindPath,
		IDPath:          cfg.IDPath,
		KindMap:         kindMap,
	}, nil
}

// ingestor is the default implementation of Ingestor
type ingestor struct {
	systemOfRecord string
	sources        map[string]Source
	stateSvc       state.TenantStateService
	store          records.Store
	queue          *queue.Queue
	clock          clock.Clock
	metrics        *telemetry.WebhookMetrics
}

// Option configures the ingestor
type Option func(*ingestor)

// WithClock sets the clock used to stamp operations
func WithClock(c clock.Clock) Option {
	return func(i *ingestor) {
		i.clock = c
	}
}

// WithWebhookMetrics sets the delivery metrics
func WithWebhookMetrics(m *telemetry.WebhookMetrics) Option {
	return func(i *ingestor) {
		i.metrics = m
	}
}

// New creates an ingestor for the given sources
func New(
	systemOfRecord string,
	sources []Source,
	stateSvc state.TenantStateService,
	store records.Store,
	q *queue.Queue,
	opts ...Option,
) Ingestor {
	i := &ingestor{
		systemOfRecord: systemOfRecord,
		sources:        make(map[string]Source, len(sources)),
		stateSvc:       stateSvc,
		store:          store,
		queue:          q,
		clock:          clock.Real{},
	}
	for _, src := range sources {
		i.sources[src.System] = src
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest implements Ingestor.Ingest
func (i *ingestor) Ingest(ctx context.Context, system string, headers http.Header, body []byte) (*Result, error) {
	src, ok := i.sources[system]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSystem, system)
	}

	op, err := i.normalize(ctx, src, headers, body)
	if err != nil {
		i.metrics.RecordDelivery(ctx, system, resultRejected)
		slog.Warn("Rejected webhook", "system", system, "error", err)
		return nil, err
	}

	queued, coalesced := i.queue.Enqueue(op)
	result := resultAccepted
	if coalesced {
		result = resultCoalesced
	}
	i.metrics.RecordDelivery(ctx, system, result)
	slog.Debug("Webhook enqueued",
		"system", system,
		"operation", queued.ID,
		"key", queued.Key().String(),
		"coalesced", coalesced)

	return &Result{OperationID: queued.ID, Coalesced: coalesced}, nil
}

// normalize verifies a notification and maps it to an operation
func (i *ingestor) normalize(ctx context.Context, src Source, headers http.Header, body []byte) (*queue.Operation, error) {
	if err := verifySignature(src, headers, body); err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrMalformed)
	}

	tenantID := gjson.GetBytes(body, pathOr(src.TenantPath, defaultTenantPath)).String()
	vendorKind := gjson.GetBytes(body, pathOr(src.KindPath, defaultKindPath)).String()
	id := gjson.GetBytes(body, pathOr(src.IDPath, defaultIDPath)).String()
	if tenantID == "" || vendorKind == "" || id == "" {
		return nil, fmt.Errorf("%w: tenant, kind and id are required", ErrMalformed)
	}

	kind, err := resolveKind(src, vendorKind)
	if err != nil {
		return nil, err
	}

	if _, err := i.stateSvc.GetTenant(ctx, tenantID); err != nil {
		if errors.Is(err, state.ErrTenantNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
		}
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}

	op := &queue.Operation{
		TenantID:         tenantID,
		Kind:             kind,
		TriggeringSystem: src.System,
		EnqueuedAt:       i.clock.Now(),
	}

	if src.System == i.systemOfRecord {
		op.Direction = queue.DirectionPush
		op.EntityID = id
		return op, nil
	}

	op.Direction = queue.DirectionPull
	mapping, err := i.store.FindByExternalID(ctx, tenantID, kind, src.System, id)
	switch {
	case err == nil:
		op.EntityID = mapping.EntityID
	case errors.Is(err, records.ErrNotFound):
		op.ExternalRef = &queue.ExternalRef{System: src.System, ExternalID: id}
	default:
		return nil, fmt.Errorf("failed to look up mapping: %w", err)
	}
	return op, nil
}

// verifySignature checks the hex HMAC-SHA256 of the raw body
func verifySignature(src Source, headers http.Header, body []byte) error {
	sig := strings.TrimSpace(headers.Get(src.SignatureHeader))
	if sig == "" {
		return fmt.Errorf("%w: missing %s header", ErrUnauthenticated, src.SignatureHeader)
	}
	sig = strings.TrimPrefix(sig, signaturePrefix)

	got, err := hex.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: signature is not hex encoded", ErrUnauthenticated)
	}
	if !hmac.Equal(got, Sign(src.Secret, body)) {
		return ErrUnauthenticated
	}
	return nil
}

// Sign returns the HMAC-SHA256 of body under secret
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

func resolveKind(src Source, vendorKind string) (entity.Kind, error) {
	if kind, ok := src.KindMap[vendorKind]; ok {
		return kind, nil
	}
	kind, err := entity.ParseKind(vendorKind)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return kind, nil
}

func pathOr(path, fallback string) string {
	if path == "" {
		return fallback
	}
	return path
}
