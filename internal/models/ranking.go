package models

import (
	"encoding/json"
	"fmt"
)

type RankedCandidate struct {
	CandidateID    string  `json:"candidateId"`
	Name           string  `json:"name,omitempty"`
	Rank           int     `json:"rank"`
	Score          float64 `json:"score"`
	Recommendation string  `json:"recommendation,omitempty"`
}

type RankingResult struct {
	JobPostingID    string            `json:"jobPostingId"`
	TotalCandidates int               `json:"totalCandidates"`
	Candidates      []RankedCandidate `json:"candidates"`
}

// ParseRankingResult reads the ranking task payload. The producer is not
// consistent about key casing, so every field is accepted in camelCase or
// snake_case. Keep the dual-key handling confined to this file.
func ParseRankingResult(raw json.RawMessage) (*RankingResult, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("ranking result is not an object: %w", err)
	}

	result := &RankingResult{}
	pick(fields, &result.JobPostingID, "jobPostingId", "job_posting_id")

	var items []map[string]json.RawMessage
	pick(fields, &items, "rankedCandidates", "ranked_candidates")

	for i, item := range items {
		var c RankedCandidate
		pick(item, &c.CandidateID, "candidateId", "candidate_id")
		pick(item, &c.Name, "candidateName", "candidate_name")
		pick(item, &c.Score, "overallScore", "overall_score")
		pick(item, &c.Recommendation, "recommendation")
		if !pick(item, &c.Rank, "rank") || c.Rank <= 0 {
			c.Rank = i + 1
		}
		result.Candidates = append(result.Candidates, c)
	}

	if !pick(fields, &result.TotalCandidates, "totalCandidates", "total_candidates") {
		result.TotalCandidates = len(result.Candidates)
	}

	return result, nil
}

// pick decodes the first present key into dst and reports whether one decoded.
func pick(fields map[string]json.RawMessage, dst any, keys ...string) bool {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok || !present(raw) {
			continue
		}
		if err := json.Unmarshal(raw, dst); err == nil {
			return true
		}
	}
	return false
}
