package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/crmsync/internal/entity"
	"github.com/stacklok/crmsync/internal/service"
	"github.com/stacklok/crmsync/test-integration/sync/helpers"
)

const crmToken = "crm-token"

var _ = Describe("CRM Sync Integration", Label("sync"), func() {
	var (
		tempDir      string
		crm          *helpers.MockCRM
		configFile   string
		serverHelper *helpers.ServerTestHelper
	)

	startServer := func(tenants ...helpers.Tenant) {
		configFile = helpers.WriteConfigYAML(tempDir, crm.URL, crmToken, tenants...)
		serverHelper = helpers.NewServerTestHelper(ctx, configFile)
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	}

	readBody := func(resp *http.Response) []byte {
		defer func() {
			_ = resp.Body.Close()
		}()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return body
	}

	getStatus := func(tenantID string) *service.TenantStatus {
		resp, err := serverHelper.Get("/sync/status/" + tenantID)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var st service.TenantStatus
		Expect(json.Unmarshal(readBody(resp), &st)).To(Succeed())
		return &st
	}

	BeforeEach(func() {
		tempDir = createTempDir("crmsync-test-")
		crm = helpers.NewMockCRM(crmToken)
	})

	AfterEach(func() {
		if serverHelper != nil {
			Expect(serverHelper.StopServer()).To(Succeed())
			serverHelper = nil
		}
		crm.Close()
		cleanupTempDir(tempDir)
	})

	Context("Change detection", func() {
		BeforeEach(func() {
			startServer(helpers.Tenant{ID: "acme", Policy: "source-priority", Direction: "bidirectional"})
		})

		It("should push system-of-record contacts to the external CRM", func() {
			contact := serverHelper.SystemOfRecord().Put("acme", &entity.Entity{
				Kind:   entity.KindContact,
				Fields: entity.Fields{"firstName": "Ada", "lastName": "Lovelace", "email": "ada@acme.test"},
			})

			resp, err := serverHelper.Post("/sync/tenant/acme/sync", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			readBody(resp)

			Eventually(func() helpers.CRMRecord {
				rec, _ := crm.FindByExternalRef("acme", contact.EntityID)
				return rec
			}, 10*time.Second, 50*time.Millisecond).Should(And(
				HaveKeyWithValue("first_name", "Ada"),
				HaveKeyWithValue("email", "ada@acme.test"),
			))
		})

		It("should keep tenants apart", func() {
			serverHelper.SystemOfRecord().Put("acme", &entity.Entity{
				Kind:   entity.KindContact,
				Fields: entity.Fields{"email": "only-acme@acme.test"},
			})
			serverHelper.SystemOfRecord().Put("globex", &entity.Entity{
				Kind:   entity.KindContact,
				Fields: entity.Fields{"email": "unknown@globex.test"},
			})

			resp, err := serverHelper.Post("/sync/tenant/acme/sync", nil)
			Expect(err).NotTo(HaveOccurred())
			readBody(resp)

			Eventually(func() []helpers.CRMRecord {
				return crm.Records("acme")
			}, 10*time.Second, 50*time.Millisecond).Should(HaveLen(1))
			Consistently(func() []helpers.CRMRecord {
				return crm.Records("globex")
			}, 500*time.Millisecond, 50*time.Millisecond).Should(BeEmpty())
		})
	})

	Context("Webhook intake", func() {
		BeforeEach(func() {
			startServer(helpers.Tenant{ID: "acme", Policy: "external-priority", Direction: "bidirectional"})
		})

		It("should pull notified records into the system of record", func() {
			externalID := crm.Create("acme", helpers.CRMRecord{"first_name": "Grace", "email": "grace@acme.test"})

			resp, err := serverHelper.PostWebhook(helpers.ExternalSystem, helpers.WebhookSecret,
				[]byte(`{"tenantId":"acme","kind":"person","id":"`+externalID+`"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
			readBody(resp)

			store := serverHelper.App().Components().Store
			var entityID string
			Eventually(func() error {
				mapping, err := store.FindByExternalID(ctx, "acme", entity.KindContact, helpers.ExternalSystem, externalID)
				if err != nil {
					return err
				}
				entityID = mapping.EntityID
				return nil
			}, 10*time.Second, 50*time.Millisecond).Should(Succeed())

			contact, ok := serverHelper.SystemOfRecord().Get("acme", entity.KindContact, entityID)
			Expect(ok).To(BeTrue())
			Expect(contact.Fields).To(HaveKeyWithValue("email", "grace@acme.test"))
			Expect(contact.Fields).To(HaveKeyWithValue("firstName", "Grace"))
		})

		It("should reject notifications with an invalid signature", func() {
			resp, err := serverHelper.PostWebhook(helpers.ExternalSystem, "wrong-secret",
				[]byte(`{"tenantId":"acme","kind":"person","id":"crm-1"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			readBody(resp)
		})

		It("should reject notifications for unknown tenants and systems", func() {
			resp, err := serverHelper.PostWebhook(helpers.ExternalSystem, helpers.WebhookSecret,
				[]byte(`{"tenantId":"initech","kind":"person","id":"crm-1"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			readBody(resp)

			resp, err = serverHelper.PostWebhook("S9", helpers.WebhookSecret,
				[]byte(`{"tenantId":"acme","kind":"person","id":"crm-1"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			readBody(resp)
		})
	})

	Context("Credential failures", func() {
		BeforeEach(func() {
			startServer(helpers.Tenant{ID: "acme", Policy: "source-priority", Direction: "push"})
		})

		It("should pause the adapter and resume parked operations once credentials are fixed", func() {
			crm.SetToken("rotated")
			contact := serverHelper.SystemOfRecord().Put("acme", &entity.Entity{
				Kind:   entity.KindContact,
				Fields: entity.Fields{"email": "parked@acme.test"},
			})
			resp, err := serverHelper.Post("/sync/tenant/acme/sync", nil)
			Expect(err).NotTo(HaveOccurred())
			readBody(resp)

			Eventually(func() map[string]string {
				return getStatus("acme").PausedAdapters
			}, 10*time.Second, 50*time.Millisecond).Should(HaveKey(helpers.ExternalSystem))
			Expect(crm.Records("acme")).To(BeEmpty())

			crm.SetToken(crmToken)
			resp, err = serverHelper.Post("/sync/tenant/acme/resume?adapter="+helpers.ExternalSystem, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var result service.ResumeResult
			Expect(json.Unmarshal(readBody(resp), &result)).To(Succeed())
			Expect(result.Resumed).To(ConsistOf(helpers.ExternalSystem))

			Eventually(func() bool {
				_, ok := crm.FindByExternalRef("acme", contact.EntityID)
				return ok
			}, 10*time.Second, 50*time.Millisecond).Should(BeTrue())
			Expect(getStatus("acme").PausedAdapters).To(BeEmpty())
		})
	})

	Context("Administration", func() {
		BeforeEach(func() {
			startServer(helpers.Tenant{ID: "acme", Policy: "field-merge", Direction: "bidirectional"})
		})

		It("should pause and resume a tenant", func() {
			resp, err := serverHelper.Post("/sync/tenant/acme/pause", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			readBody(resp)
			Expect(getStatus("acme").Paused).To(BeTrue())

			resp, err = serverHelper.Post("/sync/tenant/acme/resume", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var result service.ResumeResult
			Expect(json.Unmarshal(readBody(resp), &result)).To(Succeed())
			Expect(result.TenantResumed).To(BeTrue())
			Expect(getStatus("acme").Paused).To(BeFalse())
		})

		It("should apply tenants added to the configuration file", func() {
			helpers.WriteConfigYAML(tempDir, crm.URL, crmToken,
				helpers.Tenant{ID: "acme", Policy: "field-merge", Direction: "bidirectional"},
				helpers.Tenant{ID: "initech", Policy: "source-priority", Direction: "pull"},
			)

			Eventually(func() []string {
				resp, err := serverHelper.Get("/sync/tenants")
				if err != nil {
					return nil
				}
				var tenants []service.TenantSummary
				if err := json.Unmarshal(readBody(resp), &tenants); err != nil {
					return nil
				}
				ids := make([]string, 0, len(tenants))
				for _, t := range tenants {
					ids = append(ids, t.TenantID)
				}
				return ids
			}, 10*time.Second, 100*time.Millisecond).Should(ConsistOf("acme", "initech"))
		})
	})
})
