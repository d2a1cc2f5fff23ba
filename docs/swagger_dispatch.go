package docs

// @title           Ambulance Dispatch API
// @version         1.0
// @description     Ambulance dispatch service. Requesters report emergencies, drivers run shifts with live GPS tracking, and the dispatcher assigns the nearest available ambulance. Covers the full emergency lifecycle from creation to hospital handoff, driver offer/response flow over WebSocket, and admin visibility into the fleet.
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:3000
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
