package ratelimit

import "github.com/weftlabs/weft/common/models"

// WorkflowTier represents the rate limit tier based on workflow complexity
type WorkflowTier string

const (
	TierSimple   WorkflowTier = "simple"   // No ai-step nodes
	TierStandard WorkflowTier = "standard" // 1-2 ai-step nodes
	TierHeavy    WorkflowTier = "heavy"    // 3+ ai-step nodes
)

// WorkflowProfile contains analysis of a workflow's complexity
type WorkflowProfile struct {
	Tier        WorkflowTier // Determined tier
	AIStepCount int          // Number of ai-step nodes
	HasAISteps  bool         // Whether the workflow calls a model at all
	TotalNodes  int          // Total node count
}

// InspectDefinition analyzes a workflow definition and determines its
// complexity tier. Model calls dominate run cost, so the tier counts
// ai-step nodes and ignores everything else.
func InspectDefinition(def *models.WorkflowDefinition) WorkflowProfile {
	profile := WorkflowProfile{
		Tier:       TierSimple,
		TotalNodes: len(def.Nodes),
	}

	for _, node := range def.Nodes {
		if node.Type == models.NodeTypeAIStep {
			profile.AIStepCount++
			profile.HasAISteps = true
		}
	}

	profile.Tier = determineTier(profile.AIStepCount)
	return profile
}

// determineTier returns the appropriate tier based on ai-step count
func determineTier(aiSteps int) WorkflowTier {
	switch {
	case aiSteps == 0:
		return TierSimple
	case aiSteps <= 2:
		return TierStandard
	default: // 3+
		return TierHeavy
	}
}
