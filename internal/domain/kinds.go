package domain

// Artifact kinds known to the kernel.
const (
	KindAgentTemplate    = "agent_template"
	KindAgentScript      = "agent_script"
	KindCDDTemplate      = "cdd_template"
	KindTemplateIndex    = "template_index"
	KindModelParams      = "model_params"
	KindCFQParams        = "cfq_params"
	KindDriftProfile     = "drift_profile"
	KindDDTState         = "ddt_state"
	KindDDTDelta         = "ddt_delta"
	KindSimulationResult = "simulation_result"
	KindScenarioPatch    = "scenario_patch"
	KindEthicsPolicy     = "ethics_policy"
	KindGovernancePolicy = "governance_policy"
	KindApprovalRecord   = "approval_record"
	KindDecisionIntent   = "decision_intent"
	KindDecisionOutcome  = "decision_outcome"
	KindRunSummary       = "run_summary"
	KindLineageGraph     = "lineage_graph"
)
