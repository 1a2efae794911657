package agent

// Phase tags a layer and tells agents which step of an iteration to perform.
type Phase uint8

const (
	PhaseUnknown Phase = iota
	FlexibilityPlatformCleaning
	AccessAgreement
	BaselineProposal
	DynamicRangesComputation
	BaselineOptimization
	FlexibilityNeeds
	FlexibilityOptimization
	FlexibilityRequesting
	FlexibilityPlatformClearing
	FlexibilityPlatformActivation
	FlexibilityActivationRequesting
	ImbalanceOptimization
	Operation
	Settlement
	Quantification
)

var phaseNames = map[Phase]string{
	FlexibilityPlatformCleaning:     "Flexibility platform cleaning",
	AccessAgreement:                 "Access agreement",
	BaselineProposal:                "Baseline proposal",
	DynamicRangesComputation:        "Dynamic ranges computation",
	BaselineOptimization:            "Baseline optimization",
	FlexibilityNeeds:                "Flexibility needs",
	FlexibilityOptimization:         "Flexibility optimization",
	FlexibilityRequesting:           "Flexibility requesting",
	FlexibilityPlatformClearing:     "Flexibility platform clearing",
	FlexibilityPlatformActivation:   "Flexibility platform activation",
	FlexibilityActivationRequesting: "Flexibility activation requesting",
	ImbalanceOptimization:           "Imbalance optimization",
	Operation:                       "Operation",
	Settlement:                      "Settlement",
	Quantification:                  "Quantification",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "Unknown phase"
}
