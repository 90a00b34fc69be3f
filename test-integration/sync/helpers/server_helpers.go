// Package helpers provides the server lifecycle, mock CRM and request helpers of the integration suite.
package helpers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/onsi/gomega"

	syncapp "github.com/stacklok/crmsync/internal/app"
	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/connector/memory"
)

const (
	// SystemOfRecord is the name of the in-memory system of record
	SystemOfRecord = "ghl"

	// ExternalSystem is the name of the REST connector backed by the mock CRM
	ExternalSystem = "S1"

	// WebhookSecret signs notifications from the mock CRM
	WebhookSecret = "whsec-integration"
)

// ServerTestHelper manages the sync server lifecycle for testing
type ServerTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	address    string
	httpClient *http.Client
	app        *syncapp.SyncApp
}

// NewServerTestHelper creates a new server test helper listening on a free local port
func NewServerTestHelper(ctx context.Context, configPath string) *ServerTestHelper {
	address := freeAddress()
	return &ServerTestHelper{
		ctx:        ctx,
		configPath: configPath,
		address:    address,
		baseURL:    "http://" + address,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// StartServer starts the sync server programmatically
func (s *ServerTestHelper) StartServer() error {
	configManager, err := config.NewConfigManager(s.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := syncapp.NewSyncApp(s.ctx,
		syncapp.WithConfigManager(configManager),
		syncapp.WithAddress(s.address),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	s.app = app

	go func() {
		if err := app.Start(); err != nil {
			// The test will fail when it tries to connect
			fmt.Fprintf(os.Stderr, "Server start failed: %v\n", err)
		}
	}()
	return nil
}

// StopServer gracefully stops the sync server
func (s *ServerTestHelper) StopServer() error {
	if s.app != nil {
		return s.app.Stop(5 * time.Second)
	}
	return nil
}

// WaitForServerReady waits for the server to be ready to accept requests
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/readiness")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 100*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

// SystemOfRecord returns the in-memory system of record of the running server
func (s *ServerTestHelper) SystemOfRecord() *memory.Adapter {
	adapter, ok := s.app.Components().Connectors.Get(SystemOfRecord)
	gomega.Expect(ok).To(gomega.BeTrue())
	sor, ok := adapter.(*memory.Adapter)
	gomega.Expect(ok).To(gomega.BeTrue(), "system of record should be the memory connector")
	return sor
}

// App returns the running application
func (s *ServerTestHelper) App() *syncapp.SyncApp {
	return s.app
}

// Get makes a GET request to the given path
func (s *ServerTestHelper) Get(path string) (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + path)
}

// Post makes a POST request to the given path
func (s *ServerTestHelper) Post(path string, body []byte) (*http.Response, error) {
	return s.httpClient.Post(s.baseURL+path, "application/json", bytes.NewReader(body))
}

// PostWebhook delivers a notification signed with secret
func (s *ServerTestHelper) PostWebhook(system, secret string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.baseURL+"/sync/webhook/"+system, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature-256", "sha256="+Sign(secret, body))
	return s.httpClient.Do(req)
}

// Sign returns the hex HMAC-SHA256 of body
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Tenant is one entry of the tenants section written by WriteConfigYAML
type Tenant struct {
	ID        string
	Policy    string
	Direction string
}

// WriteConfigYAML writes a configuration with an in-memory system of record, a REST
// connector pointing at crmURL and file storage under dir
func WriteConfigYAML(dir, crmURL, crmToken string, tenants ...Tenant) string {
	tokenFile := filepath.Join(dir, "crm-token")
	gomega.Expect(os.WriteFile(tokenFile, []byte(crmToken), 0600)).To(gomega.Succeed())
	secretFile := filepath.Join(dir, "webhook-secret")
	gomega.Expect(os.WriteFile(secretFile, []byte(WebhookSecret), 0600)).To(gomega.Succeed())

	configContent := fmt.Sprintf(`sync:
  workers: 2
  pollInterval: 50ms
  backoffInitial: 50ms
  backoffMax: 200ms
  maxAttempts: 3
  adapterTimeout: 5s

systemOfRecord:
  name: %s
  type: memory

connectors:
  - name: %s
    type: rest
    rest:
      baseURL: %s
      tokenFile: %s
      kinds:
        contact:
          path: /contacts
          listPath: records
          fields:
            firstName: first_name
            lastName: last_name
            email: email

webhooks:
  - system: %s
    secretFile: %s
    kindMap:
      person: contact

storage:
  type: file
  dataDir: %s
`, SystemOfRecord, ExternalSystem, crmURL, tokenFile, ExternalSystem, secretFile, filepath.Join(dir, "data"))

	if len(tenants) > 0 {
		configContent += "\ntenants:\n"
	}
	for _, t := range tenants {
		configContent += fmt.Sprintf(`  - tenantId: %s
    conflictPolicy: %s
    syncIntervalSeconds: 3600
    adapters:
      - name: %s
        direction: %s
`, t.ID, t.Policy, ExternalSystem, t.Direction)
	}

	configPath := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(configPath, []byte(configContent), 0600)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return configPath
}

func freeAddress() string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	defer func() {
		_ = l.Close()
	}()
	return l.Addr().String()
}
