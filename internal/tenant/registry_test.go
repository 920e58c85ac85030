package tenant_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-lifecycle/internal"
	"github.com/frahmantamala/payment-lifecycle/internal/tenant"
)

var _ = Describe("Registry", func() {
	cfgs := []internal.TenantConfig{
		{
			Name:          "acme",
			CallbackToken: "cb-token-acme",
			AccountID:     "acct-acme",
			PageCode:      "page-acme",
			Secret:        "acme-secret-material-32-chars!!!",
		},
		{
			Name:          "globex",
			CallbackToken: "cb-token-globex",
			AccountID:     "acct-globex",
			PageCode:      "page-globex",
			Secret:        "globex-secret-material-32-chars!",
		},
	}

	It("resolves tenants by callback token", func() {
		registry, err := tenant.NewRegistry(cfgs)
		Expect(err).ToNot(HaveOccurred())

		t, ok := registry.ResolveToken("cb-token-globex")
		Expect(ok).To(BeTrue())
		Expect(t.Name).To(Equal("globex"))
		Expect(t.Credentials.AccountID).To(Equal("acct-globex"))
		Expect(t.Credentials.Secret).To(Equal([]byte("globex-secret-material-32-chars!")))
	})

	It("does not resolve an unknown token", func() {
		registry, err := tenant.NewRegistry(cfgs)
		Expect(err).ToNot(HaveOccurred())

		_, ok := registry.ResolveToken("cb-token-acme-but-wrong")
		Expect(ok).To(BeFalse())
	})

	It("returns credentials and callback token by tenant name", func() {
		registry, err := tenant.NewRegistry(cfgs)
		Expect(err).ToNot(HaveOccurred())

		creds, err := registry.CredentialsFor("acme")
		Expect(err).ToNot(HaveOccurred())
		Expect(creds.PageCode).To(Equal("page-acme"))

		token, err := registry.CallbackTokenFor("acme")
		Expect(err).ToNot(HaveOccurred())
		Expect(token).To(Equal("cb-token-acme"))
	})

	It("fails lookups for an unknown tenant name", func() {
		registry, err := tenant.NewRegistry(cfgs)
		Expect(err).ToNot(HaveOccurred())

		_, err = registry.CredentialsFor("initech")
		Expect(err).To(HaveOccurred())

		_, err = registry.CallbackTokenFor("initech")
		Expect(err).To(HaveOccurred())
	})

	It("rejects duplicate tenant names", func() {
		dup := append([]internal.TenantConfig{}, cfgs...)
		dup = append(dup, internal.TenantConfig{Name: "acme", CallbackToken: "cb-token-other"})

		_, err := tenant.NewRegistry(dup)
		Expect(err).To(HaveOccurred())
	})

	It("rejects duplicate callback tokens", func() {
		dup := append([]internal.TenantConfig{}, cfgs...)
		dup = append(dup, internal.TenantConfig{Name: "initech", CallbackToken: "cb-token-acme"})

		_, err := tenant.NewRegistry(dup)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a tenant without a callback token", func() {
		_, err := tenant.NewRegistry([]internal.TenantConfig{{Name: "acme"}})
		Expect(err).To(HaveOccurred())
	})
})
