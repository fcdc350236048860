package urls

// PortalDashboard is the web portal users sign in to. The access token used
// by the live channel belongs to a portal session.
const PortalDashboard = "https://portal.pettracer.com/en/dashboard"

// PortalAPI is the base of the portal REST API that issues tokens.
const PortalAPI = "https://portal.pettracer.com/api"
