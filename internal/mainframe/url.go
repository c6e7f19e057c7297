package mainframe

import (
	"net/url"
	"strings"
)

// Query parameter names are dictated by the mainframe and must not change, casing included.
const (
	ParamSession         = "ssid"
	ParamCompany         = "company"
	ParamProduct         = "product"
	ParamMandant         = "mandant"
	ParamSystem          = "sys"
	ParamAuth            = "authentifizierung"
	ParamFunction        = "funktion"
	ParamFileTransferURL = "filetransferurl"
)

// NoSession is sent as ssid when no session id is configured.
const NoSession = "NO_SESSION"

// ProtocolParams are the per-installation values merged into every call.
type ProtocolParams struct {
	SessionID string
	Company   string
	Product   string
	Mandant   string
	System    string
}

// requiredParams must be non-empty after merging or the call is not sent.
var requiredParams = []string{ParamCompany, ParamProduct, ParamMandant, ParamSystem, ParamAuth}

// reservedParams can never be overridden by call-specific extras.
var reservedParams = map[string]struct{}{
	ParamSession:  {},
	ParamCompany:  {},
	ParamProduct:  {},
	ParamMandant:  {},
	ParamSystem:   {},
	ParamAuth:     {},
	ParamFunction: {},
}

// BuildRequestURL merges the mandatory protocol parameters and call extras into baseURL.
// It returns a *MissingParamsError, and no URL, when a mandatory value is still empty.
func BuildRequestURL(baseURL string, params ProtocolParams, functionName, authToken string, extra map[string]string) (string, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return "", &MissingParamsError{Missing: []string{"base_url"}}
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return "", &MissingParamsError{Missing: []string{"base_url"}}
	}

	query := u.Query()

	forceSet(query, ParamCompany, params.Company)
	forceSet(query, ParamProduct, params.Product)
	forceSet(query, ParamMandant, params.Mandant)
	forceSet(query, ParamSystem, params.System)
	forceSet(query, ParamAuth, authToken)
	forceSet(query, ParamFunction, functionName)

	session := strings.TrimSpace(params.SessionID)
	if session == "" {
		session = strings.TrimSpace(query.Get(ParamSession))
	}
	if session == "" {
		session = NoSession
	}
	query.Set(ParamSession, session)

	for key, value := range extra {
		if _, reserved := reservedParams[key]; reserved {
			continue
		}
		query.Set(key, value)
	}

	missing := make([]string, 0, len(requiredParams))
	for _, key := range requiredParams {
		if strings.TrimSpace(query.Get(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return "", &MissingParamsError{Missing: missing}
	}

	u.RawQuery = query.Encode()
	return u.String(), nil
}

// forceSet overrides key with value, keeping a single pre-existing value when value is empty.
func forceSet(query url.Values, key, value string) {
	value = strings.TrimSpace(value)
	if value != "" {
		query.Set(key, value)
		return
	}
	if existing := query.Get(key); existing != "" {
		query.Set(key, existing)
		return
	}
	query.Del(key)
}
