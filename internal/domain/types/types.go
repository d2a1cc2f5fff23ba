package types

// EmergencyStatus is the lifecycle status of an emergency request.
type EmergencyStatus string

const (
	EmergencyCreated    EmergencyStatus = "CREATED"
	EmergencyInProgress EmergencyStatus = "IN_PROGRESS"
	EmergencyDispatched EmergencyStatus = "DISPATCHED"
	EmergencyAtPatient  EmergencyStatus = "AT_PATIENT"
	EmergencyToHospital EmergencyStatus = "TO_HOSPITAL"
	EmergencyUnassigned EmergencyStatus = "UNASSIGNED"
	EmergencyCompleted  EmergencyStatus = "COMPLETED"
	EmergencyCancelled  EmergencyStatus = "CANCELLED"
)

func (s EmergencyStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status allows no further transitions.
func (s EmergencyStatus) IsTerminal() bool {
	return s == EmergencyCompleted || s == EmergencyCancelled
}

// AssignmentStatus is the lifecycle status of an emergency-to-vehicle pairing.
type AssignmentStatus string

const (
	AssignmentAssigned  AssignmentStatus = "ASSIGNED"
	AssignmentAccepted  AssignmentStatus = "ACCEPTED"
	AssignmentRejected  AssignmentStatus = "REJECTED"
	AssignmentTimeout   AssignmentStatus = "TIMEOUT"
	AssignmentCancelled AssignmentStatus = "CANCELLED"
	AssignmentCompleted AssignmentStatus = "COMPLETED"
)

func (s AssignmentStatus) String() string {
	return string(s)
}

// IsActive reports whether the assignment still holds its vehicle.
// Exactly one active assignment may exist per emergency.
func (s AssignmentStatus) IsActive() bool {
	return s == AssignmentAssigned || s == AssignmentAccepted
}

// SessionStatus is the on-shift status of a driver session.
type SessionStatus string

const (
	SessionOnline  SessionStatus = "ONLINE"
	SessionOnTrip  SessionStatus = "ON_TRIP"
	SessionOffline SessionStatus = "OFFLINE"
)

func (s SessionStatus) String() string {
	return string(s)
}

// VehicleStatus is an ambulance availability status.
type VehicleStatus string

const (
	VehicleAvailable VehicleStatus = "AVAILABLE"
	VehicleBusy      VehicleStatus = "BUSY"
)

// EmergencyType classifies what kind of help is requested.
type EmergencyType string

const (
	TypeMedical  EmergencyType = "MEDICAL"
	TypeTrauma   EmergencyType = "TRAUMA"
	TypeCardiac  EmergencyType = "CARDIAC"
	TypeBirth    EmergencyType = "BIRTH"
	TypeAccident EmergencyType = "ACCIDENT"
	TypeOther    EmergencyType = "OTHER"
)

// Severity ranks how urgent an emergency is.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// UserRole distinguishes who is calling.
type UserRole string

func (r UserRole) String() string {
	return string(r)
}

const (
	RoleRequester UserRole = "REQUESTER"
	RoleDriver    UserRole = "DRIVER"
	RoleAdmin     UserRole = "ADMIN"
)

// UserStatus marks whether an account may act.
type UserStatus string

const (
	UserActive  UserStatus = "ACTIVE"
	UserBlocked UserStatus = "BLOCKED"
)

// TimelineEventType names events reconstructed for an emergency timeline.
type TimelineEventType string

const (
	EventCreated    TimelineEventType = "CREATED"
	EventAssigned   TimelineEventType = "ASSIGNED"
	EventAccepted   TimelineEventType = "ACCEPTED"
	EventRejected   TimelineEventType = "REJECTED"
	EventTimedOut   TimelineEventType = "TIMED_OUT"
	EventAtPatient  TimelineEventType = "AT_PATIENT"
	EventToHospital TimelineEventType = "TO_HOSPITAL"
	EventCompleted  TimelineEventType = "COMPLETED"
	EventUnassigned TimelineEventType = "UNASSIGNED"
	EventCancelled  TimelineEventType = "CANCELLED"
)

func (t TimelineEventType) String() string {
	return string(t)
}
