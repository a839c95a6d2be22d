package webrisk

// Threat type identifiers understood by the upstream service. Order matters:
// display and default-filling iterate these slices in order.
const (
	ThreatMalware                   = "MALWARE"
	ThreatSocialEngineering         = "SOCIAL_ENGINEERING"
	ThreatUnwantedSoftware          = "UNWANTED_SOFTWARE"
	ThreatSocialEngineeringExtended = "SOCIAL_ENGINEERING_EXTENDED_COVERAGE"
)

// LookupThreatTypes are the threat types the lookup endpoint accepts.
var LookupThreatTypes = []string{
	ThreatMalware,
	ThreatSocialEngineering,
	ThreatUnwantedSoftware,
}

// EvaluateThreatTypes are the threat types the evaluate endpoint accepts.
var EvaluateThreatTypes = []string{
	ThreatMalware,
	ThreatSocialEngineering,
	ThreatUnwantedSoftware,
}

// SubmissionThreatTypes are the threat types accepted for URI submissions.
var SubmissionThreatTypes = []string{
	ThreatMalware,
	ThreatSocialEngineering,
	ThreatUnwantedSoftware,
	ThreatSocialEngineeringExtended,
}

// ValidSubmissionType reports whether t is an allowed submission threat type.
func ValidSubmissionType(t string) bool {
	for _, allowed := range SubmissionThreatTypes {
		if t == allowed {
			return true
		}
	}
	return false
}
