package memory

import "strings"

// ValidateCandidate rejects malformed candidate facts before any work is
// done on them. Returns a ValidationError describing the first problem found.
func ValidateCandidate(c *CandidateFact) error {
	if strings.TrimSpace(c.Fact) == "" {
		return Validationf("candidate %s has an empty fact", c.ID)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return Validationf("candidate %s confidence %v out of range [0,1]", c.ID, c.Confidence)
	}
	return nil
}

// ValidateJob rejects malformed consolidation jobs: missing id, empty scope,
// or any malformed candidate.
func ValidateJob(job *ConsolidationJob) error {
	if job.ID == "" {
		return Validationf("job has no id")
	}
	if job.Scope.Len() == 0 {
		return Validationf("job %s has an empty scope", job.ID)
	}
	for i := range job.Candidates {
		if err := ValidateCandidate(&job.Candidates[i]); err != nil {
			return err
		}
	}
	return nil
}
