package config

import (
	"strings"
	"time"
)

const (
	apiURLVar      = "MILITEX_API_URL"
	httpTimeoutVar = "MILITEX_HTTP_TIMEOUT"
	loginRouteVar  = "MILITEX_LOGIN_ROUTE"
)

type API struct {
	file *File
}

var _ APIConfig = API{}

// GetAPIURL returns the backend base URL without a trailing slash.
func (a API) GetAPIURL() string {
	return strings.TrimRight(GetEnv(apiURLVar, orDefault(a.file.APIURL, "http://localhost:8000")), "/")
}

func (a API) GetHTTPTimeout() time.Duration {
	return GetEnvDuration(httpTimeoutVar, a.file.HTTPTimeout.Or(30*time.Second))
}

func (a API) GetLoginRoute() string {
	return GetEnv(loginRouteVar, orDefault(a.file.LoginRoute, "/login"))
}
