package crm

import "fmt"

// datacenter holds the per-region CRM domains.
type datacenter struct {
	accounts string
	api      string
}

var datacenters = map[string]datacenter{
	"us": {accounts: "zoho.com", api: "zohoapis.com"},
	"au": {accounts: "zoho.com.au", api: "zohoapis.com.au"},
	"eu": {accounts: "zoho.eu", api: "zohoapis.eu"},
	"in": {accounts: "zoho.in", api: "zohoapis.in"},
}

// Endpoints resolves the OAuth token URL and API base for a datacenter code.
func Endpoints(dc string) (tokenURL, apiBase string, err error) {
	d, ok := datacenters[dc]
	if !ok {
		return "", "", fmt.Errorf("unsupported CRM datacenter %q", dc)
	}
	return fmt.Sprintf("https://accounts.%s/oauth/v2/token", d.accounts),
		fmt.Sprintf("https://www.%s/crm/v2", d.api),
		nil
}
