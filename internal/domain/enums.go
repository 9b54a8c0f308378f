// Package domain defines the core data model of the execution kernel.
package domain

// SecurityFlag classifies the trust level of a capability's origin.
type SecurityFlag string

const (
	SecurityFlagInternalTrusted   SecurityFlag = "internal_trusted"
	SecurityFlagIntraOrg          SecurityFlag = "intra_org"
	SecurityFlagExternalUntrusted SecurityFlag = "external_untrusted"
)

// Valid reports whether f is a known flag.
func (f SecurityFlag) Valid() bool {
	switch f {
	case SecurityFlagInternalTrusted, SecurityFlagIntraOrg, SecurityFlagExternalUntrusted:
		return true
	}
	return false
}

// DecisionClass describes how consequential a capability's outcome is.
type DecisionClass string

const (
	DecisionClassInformational DecisionClass = "informational"
	DecisionClassAdvisory      DecisionClass = "advisory"
	DecisionClassExecutable    DecisionClass = "executable"
)

// Valid reports whether c is a known decision class.
func (c DecisionClass) Valid() bool {
	switch c {
	case DecisionClassInformational, DecisionClassAdvisory, DecisionClassExecutable:
		return true
	}
	return false
}

// CapabilityKind distinguishes agents from algorithms.
type CapabilityKind string

const (
	CapabilityKindAgent     CapabilityKind = "agent"
	CapabilityKindAlgorithm CapabilityKind = "algorithm"
)

// Severity of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarn     Severity = "WARN"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// ActorType identifies who performed an action.
type ActorType string

const (
	ActorTypeHuman  ActorType = "human"
	ActorTypeAgent  ActorType = "agent"
	ActorTypeSystem ActorType = "system"
)

// EventType represents the type of an audit event.
type EventType string

const (
	// Gate events
	EventTypePolicyAllow                EventType = "POLICY_ALLOW"
	EventTypePolicyDeny                 EventType = "POLICY_DENY"
	EventTypeGovernanceBlock            EventType = "GOVERNANCE_BLOCK"
	EventTypeGovernanceApprovalRequired EventType = "GOVERNANCE_APPROVAL_REQUIRED"

	// Capability lifecycle
	EventTypeAgentStart EventType = "AGENT_START"
	EventTypeAgentEnd   EventType = "AGENT_END"
	EventTypeAgentFail  EventType = "AGENT_FAIL"

	// Script steps
	EventTypeAlgorithmSelected EventType = "ALGORITHM_SELECTED"
	EventTypeArtifactStored    EventType = "ARTIFACT_STORED"
	EventTypePointerSet        EventType = "POINTER_SET"

	// Zone runs
	EventTypeRunStarted EventType = "RUN_STARTED"
	EventTypeRunEnded   EventType = "RUN_ENDED"
	EventTypeRunFailed  EventType = "RUN_FAILED"

	// Living store
	EventTypeSessionCreated EventType = "SESSION_CREATED"
	EventTypeSessionClosed  EventType = "SESSION_CLOSED"
)

// GovernanceOutcome is the result of a governance check.
type GovernanceOutcome string

const (
	GovernanceAllow           GovernanceOutcome = "ALLOW"
	GovernanceBlock           GovernanceOutcome = "BLOCK"
	GovernanceRequireApproval GovernanceOutcome = "REQUIRE_APPROVAL"
	GovernanceAccept          GovernanceOutcome = "ACCEPT"
)

// SessionMode distinguishes live sessions from what-if explorations.
type SessionMode string

const (
	SessionModeLive   SessionMode = "live"
	SessionModeWhatIf SessionMode = "whatif"
)

// SessionStatus represents the status of a session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusClosed SessionStatus = "closed"
)

// RunMode says whether a run was started automatically or by an operator.
type RunMode string

const (
	RunModeAuto   RunMode = "auto"
	RunModeManual RunMode = "manual"
)

// ZoneRunMode is the execution mode requested from a zone.
type ZoneRunMode string

const (
	ZoneRunModeFull         ZoneRunMode = "full"
	ZoneRunModeIncremental  ZoneRunMode = "incremental"
	ZoneRunModeValidateOnly ZoneRunMode = "validate_only"
)

// ZoneStatus is the outcome reported by a zone execution.
type ZoneStatus string

const (
	ZoneStatusSuccess          ZoneStatus = "success"
	ZoneStatusBlocked          ZoneStatus = "blocked"
	ZoneStatusRequiresApproval ZoneStatus = "requires_approval"
	ZoneStatusFailed           ZoneStatus = "failed"
)

// Approval roles allowed to move sensitive pointers.
const (
	RoleGovernor = "governor"
	RoleAdmin    = "admin"
)
