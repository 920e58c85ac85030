package gateway

import (
	"context"
	"net/http"

	gatewaytypes "github.com/frahmantamala/payment-lifecycle/internal/core/datamodel/gateway"
)

// Provider is the capability contract one concrete gateway adapter fulfills.
// The engine above it only ever sees the normalized LinkResult/CallbackData
// types; request and response shapes on the wire are adapter-private.
//
// VerifyCallback takes the tenant secret explicitly so multi-tenant callback
// routing stays provable; adapters must never read secret material from
// process-wide state. QueryStatus must be idempotent and side-effect-free on
// the gateway.
type Provider interface {
	CreateLink(ctx context.Context, req gatewaytypes.CreateLinkRequest, creds gatewaytypes.TenantCredentials) (*gatewaytypes.LinkResult, error)
	VerifyCallback(rawBody []byte, headers http.Header, creds gatewaytypes.TenantCredentials) bool
	ParseCallback(rawBody []byte) (*gatewaytypes.CallbackData, error)
	QueryStatus(ctx context.Context, externalCode string, creds gatewaytypes.TenantCredentials) (*gatewaytypes.CallbackData, error)
}
