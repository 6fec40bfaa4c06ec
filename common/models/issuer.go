package models

// ServiceTypeMoodleNet is the service type an issuer must carry to be a valid
// outbound share target.
const ServiceTypeMoodleNet = "moodlenet"

// Issuer represents one external OAuth 2 capable service endpoint
// Maps to: oauth2_issuer table
type Issuer struct {
	ID int64 `db:"id" json:"id"`

	// Human readable name shown in the sharing UI
	Name string `db:"name" json:"name"`

	// Base URL of the remote service, without trailing slash
	BaseURL string `db:"baseurl" json:"baseurl"`

	// OAuth 2 client credentials registered with the remote service
	ClientID     string `db:"clientid" json:"clientid"`
	ClientSecret string `db:"clientsecret" json:"-"`

	// Endpoints of the delegated-authorization flow
	AuthorizationEndpoint string `db:"authorizationendpoint" json:"authorizationendpoint"`
	TokenEndpoint         string `db:"tokenendpoint" json:"tokenendpoint"`

	// Whether the issuer is enabled by the site administrator
	Enabled bool `db:"enabled" json:"enabled"`

	// Service type, e.g. "moodlenet"
	ServiceType string `db:"servicetype" json:"servicetype"`
}
