// Package rest implements a connector for JSON REST systems whose resource
// layout is described entirely by configuration.
package rest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/stacklok/crmsync/internal/connector"
	"github.com/stacklok/crmsync/internal/entity"
	"github.com/stacklok/crmsync/internal/httpclient"
)

// Adapter is a connector.Adapter for a configurable REST API
type Adapter struct {
	cfg    Config
	kinds  map[entity.Kind]KindConfig
	client httpclient.Client
	now    func() time.Time
}

// Option configures an Adapter
type Option func(*Adapter)

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(c httpclient.Client) Option {
	return func(a *Adapter) {
		a.client = c
	}
}

// New creates a REST adapter from its configuration
func New(cfg Config, opts ...Option) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid rest connector config: %w", err)
	}

	a := &Adapter{
		cfg:    cfg,
		kinds:  make(map[entity.Kind]KindConfig, len(cfg.Kinds)),
		client: httpclient.NewDefaultClient(cfg.Timeout),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for kind, kc := range cfg.Kinds {
		a.kinds[kind] = kc.withDefaults()
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Name returns the system name
func (a *Adapter) Name() string {
	return a.cfg.Name
}

// Fetch retrieves one record by its identifier in this system
func (a *Adapter) Fetch(ctx context.Context, tenantID string, kind entity.Kind, externalID string) (*entity.Entity, error) {
	kc, err := a.kindConfig(kind)
	if err != nil {
		return nil, err
	}

	data, err := a.client.Do(ctx, http.MethodGet, a.itemURL(tenantID, kc, externalID), nil, a.header(tenantID))
	if err != nil {
		return nil, a.classify(err)
	}

	item := gjson.ParseBytes(data)
	if kc.ItemPath != "" {
		item = item.Get(kc.ItemPath)
	}
	if !item.Exists() || !item.IsObject() {
		return nil, connector.Permanent(a.cfg.Name, fmt.Errorf("unexpected response for %s/%s", kind, externalID))
	}
	return a.decode(tenantID, kind, kc, item), nil
}

// FetchChangedSince pages through records updated after watermark.
// Each page is requested only when the previous one has been consumed.
func (a *Adapter) FetchChangedSince(
	ctx context.Context, tenantID string, kind entity.Kind, watermark time.Time,
) iter.Seq2[*entity.Entity, error] {
	return func(yield func(*entity.Entity, error) bool) {
		kc, err := a.kindConfig(kind)
		if err != nil {
			yield(nil, err)
			return
		}

		cursor := ""
		for {
			query := url.Values{}
			query.Set(kc.ChangedSinceParam, watermark.UTC().Format(time.RFC3339Nano))
			if cursor != "" {
				query.Set(kc.CursorParam, cursor)
			}

			data, err := a.client.Do(ctx, http.MethodGet, a.collectionURL(tenantID, kc, query), nil, a.header(tenantID))
			if err != nil {
				yield(nil, a.classify(err))
				return
			}

			list := gjson.ParseBytes(data)
			if kc.ListPath != "" {
				list = list.Get(kc.ListPath)
			}
			for _, item := range list.Array() {
				e := a.decode(tenantID, kind, kc, item)
				// servers may treat the watermark as inclusive
				if !e.LastModifiedAt.After(watermark) {
					continue
				}
				if !yield(e, nil) {
					return
				}
			}

			if kc.CursorPath == "" {
				return
			}
			cursor = gjson.GetBytes(data, kc.CursorPath).String()
			if cursor == "" || len(list.Array()) == 0 {
				return
			}
		}
	}
}

// Upsert writes e to this system. The current record is located by ExternalID
// or by a canonical id lookup; nothing is written when its fields already match.
func (a *Adapter) Upsert(ctx context.Context, tenantID string, e *entity.Entity) (*entity.ExternalMapping, error) {
	if e == nil {
		return nil, connector.Permanent(a.cfg.Name, errors.New("entity cannot be nil"))
	}
	if err := entity.Validate(e); err != nil {
		return nil, connector.Permanent(a.cfg.Name, err)
	}
	kc, err := a.kindConfig(e.Kind)
	if err != nil {
		return nil, err
	}

	existing, err := a.findExisting(ctx, tenantID, kc, e)
	if err != nil {
		return nil, err
	}
	if existing != nil && entity.SameFields(existing, project(kc, e)) {
		return a.mapping(tenantID, e, existing), nil
	}

	body, err := a.encode(kc, e)
	if err != nil {
		return nil, connector.Permanent(a.cfg.Name, err)
	}

	var data []byte
	if existing == nil {
		data, err = a.client.Do(ctx, http.MethodPost, a.collectionURL(tenantID, kc, nil), body, a.header(tenantID))
	} else {
		data, err = a.client.Do(ctx, http.MethodPut, a.itemURL(tenantID, kc, existing.ExternalID), body, a.header(tenantID))
	}
	if err != nil {
		return nil, a.classify(err)
	}

	item := gjson.ParseBytes(data)
	if kc.ItemPath != "" {
		item = item.Get(kc.ItemPath)
	}
	written := a.decode(tenantID, e.Kind, kc, item)
	if written.ExternalID == "" && existing != nil {
		written.ExternalID = existing.ExternalID
	}
	if written.ExternalID == "" {
		return nil, connector.Permanent(a.cfg.Name, fmt.Errorf("response did not contain %q", kc.IDPath))
	}
	if !item.Get(kc.VersionPath).Exists() && existing != nil {
		written.Version = existing.Version + 1
	}

	slog.Debug("Upserted record",
		"system", a.cfg.Name,
		"tenant", tenantID,
		"kind", e.Kind,
		"entity_id", e.EntityID,
		"external_id", written.ExternalID,
		"created", existing == nil)

	return a.mapping(tenantID, e, written), nil
}

func (a *Adapter) findExisting(
	ctx context.Context, tenantID string, kc KindConfig, e *entity.Entity,
) (*entity.Entity, error) {
	if e.ExternalID != "" {
		existing, err := a.Fetch(ctx, tenantID, e.Kind, e.ExternalID)
		switch {
		case err == nil:
			return existing, nil
		case !errors.Is(err, connector.ErrNotFound):
			return nil, err
		}
	}
	if e.EntityID == "" {
		return nil, nil
	}

	query := url.Values{}
	query.Set(kc.LookupParam, e.EntityID)
	data, err := a.client.Do(ctx, http.MethodGet, a.collectionURL(tenantID, kc, query), nil, a.header(tenantID))
	if err != nil {
		return nil, a.classify(err)
	}
	list := gjson.ParseBytes(data)
	if kc.ListPath != "" {
		list = list.Get(kc.ListPath)
	}
	for _, item := range list.Array() {
		if item.Get(kc.CanonicalIDPath).String() == e.EntityID {
			return a.decode(tenantID, e.Kind, kc, item), nil
		}
	}
	return nil, nil
}

func (a *Adapter) mapping(tenantID string, e, remote *entity.Entity) *entity.ExternalMapping {
	entityID := e.EntityID
	if entityID == "" {
		entityID = remote.EntityID
	}
	return &entity.ExternalMapping{
		TenantID:        tenantID,
		Kind:            e.Kind,
		EntityID:        entityID,
		System:          a.cfg.Name,
		ExternalID:      remote.ExternalID,
		ExternalVersion: remote.Version,
		SyncedAt:        a.now(),
	}
}

func (a *Adapter) kindConfig(kind entity.Kind) (KindConfig, error) {
	kc, ok := a.kinds[kind]
	if !ok {
		return KindConfig{}, connector.Permanent(a.cfg.Name, fmt.Errorf("kind %q is not supported", kind))
	}
	return kc, nil
}

func (a *Adapter) header(tenantID string) http.Header {
	h := http.Header{}
	h.Set("X-Tenant-ID", tenantID)
	if a.cfg.Token != "" {
		h.Set("Authorization", "Bearer "+a.cfg.Token)
	}
	return h
}

func (a *Adapter) collectionURL(tenantID string, kc KindConfig, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("tenant", tenantID)
	return a.cfg.BaseURL + kc.Path + "?" + query.Encode()
}

func (a *Adapter) itemURL(tenantID string, kc KindConfig, externalID string) string {
	return a.cfg.BaseURL + kc.Path + "/" + url.PathEscape(externalID) + "?tenant=" + url.QueryEscape(tenantID)
}

// classify maps HTTP client errors to the connector taxonomy
func (a *Adapter) classify(err error) error {
	var httpErr *httpclient.HTTPError
	if !errors.As(err, &httpErr) {
		return &connector.TransientError{System: a.cfg.Name, Err: err}
	}

	switch code := httpErr.StatusCode; {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return connector.Auth(a.cfg.Name, err)
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", a.cfg.Name, connector.ErrNotFound)
	case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500:
		return &connector.TransientError{
			System:     a.cfg.Name,
			Err:        err,
			RetryAfter: httpErr.RetryAfter(a.now()),
		}
	default:
		return connector.Permanent(a.cfg.Name, err)
	}
}

func (a *Adapter) decode(tenantID string, kind entity.Kind, kc KindConfig, item gjson.Result) *entity.Entity {
	e := &entity.Entity{
		EntityID:     item.Get(kc.CanonicalIDPath).String(),
		ExternalID:   item.Get(kc.IDPath).String(),
		TenantID:     tenantID,
		Kind:         kind,
		Fields:       entity.Fields{},
		SourceSystem: a.cfg.Name,
	}

	updated := item.Get(kc.UpdatedAtPath)
	switch updated.Type {
	case gjson.Number:
		e.LastModifiedAt = time.UnixMilli(updated.Int()).UTC()
	case gjson.String:
		if ts, err := time.Parse(time.RFC3339Nano, updated.String()); err == nil {
			e.LastModifiedAt = ts.UTC()
		}
	}

	if v := item.Get(kc.VersionPath); v.Exists() {
		e.Version = v.Int()
	} else {
		e.Version = e.LastModifiedAt.UnixMilli()
	}

	for _, def := range entity.Schema(kind) {
		path, ok := kc.Fields[def.Name]
		if !ok {
			continue
		}
		value := item.Get(path)
		if !value.Exists() || value.Type == gjson.Null {
			continue
		}
		switch def.Type {
		case entity.FieldString:
			e.Fields[def.Name] = value.String()
		case entity.FieldNumber:
			e.Fields[def.Name] = value.Float()
		case entity.FieldBool:
			e.Fields[def.Name] = value.Bool()
		case entity.FieldStringList:
			list := make([]string, 0)
			for _, v := range value.Array() {
				list = append(list, v.String())
			}
			e.Fields[def.Name] = list
		}
	}
	return e
}

// project keeps only the fields this system stores
func project(kc KindConfig, e *entity.Entity) *entity.Entity {
	out := e.Clone()
	for name := range out.Fields {
		if _, ok := kc.Fields[name]; !ok {
			delete(out.Fields, name)
		}
	}
	return out
}

func (*Adapter) encode(kc KindConfig, e *entity.Entity) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	if e.EntityID != "" {
		if body, err = sjson.SetBytes(body, kc.CanonicalIDPath, e.EntityID); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", kc.CanonicalIDPath, err)
		}
	}
	for _, name := range e.Fields.Keys(e.Kind) {
		path, ok := kc.Fields[name]
		if !ok {
			continue
		}
		if body, err = sjson.SetBytes(body, path, e.Fields[name]); err != nil {
			return nil, fmt.Errorf("failed to encode field %s: %w", name, err)
		}
	}
	return body, nil
}
