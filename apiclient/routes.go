package apiclient

// REST endpoints of the Militex backend. The trailing slashes are significant.
const (
	RouteCSRF         = "/csrf/"
	RouteToken        = "/api/token/"
	RouteTokenRefresh = "/api/token/refresh/"
	RouteUsersMe      = "/users/me/"
	RouteUsers        = "/api/users/"
	RouteCars         = "/api/cars/"
	RouteFundraisers  = "/api/fundraisers/"
)

// CSRF cookie and header names used by the backend.
const (
	CSRFCookieName  = "csrftoken"
	CSRFHeaderName  = "X-CSRFToken"
	RequestIDHeader = "X-Request-ID"
)
