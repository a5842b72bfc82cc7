package server

import "github.com/dotside-studios/ndefscan/buildinfo"

// mDNS service discovery constants
var (
	MDNSServiceType = "_ndef-agent._tcp"
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// API routes
const (
	apiV1        = "/api/v1"
	routeHealth  = apiV1 + "/health"
	routeScan    = apiV1 + "/scan"
	routeDecode  = apiV1 + "/decode"
	routeEncode  = apiV1 + "/encode"
	routeClients = "/ws"
	routeDevices = "/ws/device"
)

// WebSocket request types accepted from display clients
const (
	WSRequestTypeScan   = "scan"
	WSRequestTypeCancel = "cancel"
)

// CORS configuration
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET, POST, DELETE, OPTIONS"
	CORSAllowHeaders = "Content-Type, Authorization"
)

// maxBodyBytes bounds request bodies; NDEF messages on tags are a few KiB.
const maxBodyBytes = 1 << 20
