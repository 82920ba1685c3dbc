package apistub

import "github.com/jrsteele09/militex-client/apiclient"

// Route keys accepted by Calls, LastHeader and FailNext.
const (
	RouteCSRF         = apiclient.RouteCSRF
	RouteToken        = apiclient.RouteToken
	RouteTokenRefresh = apiclient.RouteTokenRefresh
	RouteUsersMe      = apiclient.RouteUsersMe
	RouteUsers        = apiclient.RouteUsers
	RouteCars         = apiclient.RouteCars
	RouteFundraisers  = apiclient.RouteFundraisers
	RouteDonate       = apiclient.RouteFundraisers + "{id}/donate/"
)
