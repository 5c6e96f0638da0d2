package constants

// Static route constants
const (
	HealthRoute        = "/healthz"
	WebhooksRoute      = "/webhooks"
	StripeWebhookRoute = "/stripe"
	APIRoute           = "/api"
	APIV1Route         = "/v1"
	// Docs are served under DocsBasePath + DocsVersion
	DocsBasePath = "/docs/api/"
	DocsVersion  = "v1"
)
