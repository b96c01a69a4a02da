// Package core provides shared types, the error taxonomy, and the response
// envelope for the entity substitution engine.
package core

import "time"

// EntityType classifies a detected span or a stored mapping.
type EntityType string

// Safe Harbor identifier categories plus the medical categories that the
// skip-set policy can exclude from substitution.
const (
	EntityName        EntityType = "NAME"
	EntityEmail       EntityType = "EMAIL"
	EntityPhone       EntityType = "PHONE_NUMBER"
	EntitySSN         EntityType = "SSN"
	EntityDate        EntityType = "DATE"
	EntityDOB         EntityType = "DOB"
	EntityCreditCard  EntityType = "CREDIT_DEBIT_NUMBER"
	EntityZIP         EntityType = "ZIP"
	EntityAddress     EntityType = "ADDRESS"
	EntityMRN         EntityType = "MRN"
	EntityInsuranceID EntityType = "INSURANCE_ID"
	EntityLicense     EntityType = "LICENSE_NUMBER"
	EntityVehicleID   EntityType = "VEHICLE_ID"
	EntityDeviceID    EntityType = "DEVICE_ID"
	EntityURL         EntityType = "URL"
	EntityIPAddress   EntityType = "IP_ADDRESS"
	EntityBiometric   EntityType = "BIOMETRIC_ID"
	EntityTrialID     EntityType = "CLINICAL_TRIAL_ID"
	EntityEmployeeID  EntityType = "EMPLOYEE_ID"

	EntityDiagnosis  EntityType = "DIAGNOSIS"
	EntityMedication EntityType = "MEDICATION"
	EntityCondition  EntityType = "MEDICAL_CONDITION"
	EntityLabValue   EntityType = "LAB_VALUE"
	EntityProcedure  EntityType = "PROCEDURE"
)

// Span is one detected entity occurrence in a source text.
// Start and End are byte offsets into the scanned text (End exclusive).
type Span struct {
	Type       EntityType `json:"type"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Confidence float64    `json:"confidence"`
	// Value is the matched source text, text[Start:End].
	Value string `json:"value"`
}

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether two spans cover any common byte.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && s.End > o.Start
}

// Identity is a caller-scoped namespace for mappings. One identity exists per
// (ScopeID, ScopeType) pair; it is created lazily on the first anonymization
// request and never deleted by the engine.
type Identity struct {
	UUID      string    `json:"uuid"`
	ScopeID   string    `json:"scope_id"`
	ScopeType string    `json:"scope_type"`
	CreatedAt time.Time `json:"created_at"`
}

// Mapping is one original-value to fake-value pair within an identity's
// scope. (IdentityUUID, EntityType, OriginalValue) is unique, and FakeValue is
// unique within the identity so that reverse lookup is lossless.
type Mapping struct {
	IdentityUUID  string     `json:"uuid"`
	EntityType    EntityType `json:"entity_type"`
	OriginalValue string     `json:"original_value"`
	FakeType      string     `json:"fake_type"`
	FakeValue     string     `json:"fake_value"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Method identifies the kind of top-level operation recorded for audit.
type Method string

const (
	MethodAnonymize             Method = "ANONYMIZE"
	MethodDeAnonymize           Method = "DE-ANONYMIZE"
	MethodAnonymizeStructured   Method = "ANONYMIZE_STRUCTURED"
	MethodDeAnonymizeStructured Method = "DE-ANONYMIZE_STRUCTURED"
)

// OperationRecord is the append-only history row written after every
// top-level facade call. It exists for compliance audit only and is never
// consulted by the engine's own logic.
type OperationRecord struct {
	IdentityUUID       string    `json:"uuid"`
	OriginalPayload    string    `json:"original_payload"`
	TransformedPayload string    `json:"transformed_payload"`
	Method             Method    `json:"method"`
	Metadata           string    `json:"metadata,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Direction selects which way a transform runs.
type Direction int

const (
	DirectionAnonymize Direction = iota
	DirectionDeAnonymize
)

func (d Direction) String() string {
	if d == DirectionDeAnonymize {
		return "deanonymize"
	}
	return "anonymize"
}
