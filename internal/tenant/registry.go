package tenant

import (
	"fmt"

	"github.com/frahmantamala/payment-lifecycle/internal"
	gatewaytypes "github.com/frahmantamala/payment-lifecycle/internal/core/datamodel/gateway"
)

// Tenant binds a name and callback token to one set of gateway credentials.
type Tenant struct {
	Name          string
	CallbackToken string
	Credentials   gatewaytypes.TenantCredentials
}

// Registry resolves tenants by the opaque callback-path token and by name.
// The token is the only pre-verification input the webhook pipeline trusts
// for secret selection; nothing inside an unverified payload can choose
// which secret validates it.
type Registry struct {
	byToken map[string]*Tenant
	byName  map[string]*Tenant
}

func NewRegistry(cfgs []internal.TenantConfig) (*Registry, error) {
	r := &Registry{
		byToken: make(map[string]*Tenant, len(cfgs)),
		byName:  make(map[string]*Tenant, len(cfgs)),
	}

	for _, cfg := range cfgs {
		if cfg.Name == "" || cfg.CallbackToken == "" {
			return nil, fmt.Errorf("tenant config requires name and callback_token")
		}
		if _, exists := r.byName[cfg.Name]; exists {
			return nil, fmt.Errorf("duplicate tenant name %s", cfg.Name)
		}
		if _, exists := r.byToken[cfg.CallbackToken]; exists {
			return nil, fmt.Errorf("duplicate callback token for tenant %s", cfg.Name)
		}

		t := &Tenant{
			Name:          cfg.Name,
			CallbackToken: cfg.CallbackToken,
			Credentials: gatewaytypes.TenantCredentials{
				AccountID: cfg.AccountID,
				PageCode:  cfg.PageCode,
				Secret:    []byte(cfg.Secret),
			},
		}
		r.byName[cfg.Name] = t
		r.byToken[cfg.CallbackToken] = t
	}

	return r, nil
}

// ResolveToken looks up the tenant for a callback-path token.
func (r *Registry) ResolveToken(token string) (*Tenant, bool) {
	t, ok := r.byToken[token]
	return t, ok
}

// CredentialsFor returns the gateway credentials for a tenant name.
func (r *Registry) CredentialsFor(name string) (gatewaytypes.TenantCredentials, error) {
	t, ok := r.byName[name]
	if !ok {
		return gatewaytypes.TenantCredentials{}, internal.ErrUnknownTenant
	}
	return t.Credentials, nil
}

// CallbackTokenFor returns the opaque callback-path token for a tenant name,
// used to build the notify target handed to the gateway at link creation.
func (r *Registry) CallbackTokenFor(name string) (string, error) {
	t, ok := r.byName[name]
	if !ok {
		return "", internal.ErrUnknownTenant
	}
	return t.CallbackToken, nil
}
