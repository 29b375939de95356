// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package council

import (
	"math"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

// MemberAttribution is the full per-member scoring of one deliberation.
type MemberAttribution struct {
	Member             types.CouncilMember `json:"member"`
	Shapley            float64             `json:"shapley"`
	Percent            float64             `json:"percent"`
	ResponseQuality    int                 `json:"responseQuality"`
	ChallengeImpact    int                 `json:"challengeImpact"`
	ConsensusAlignment float64             `json:"consensusAlignment"`
}

// verdict factors weight the alignment term of the coalition value.
func verdictFactor(kind types.VerdictKind) float64 {
	switch kind {
	case types.VerdictConsensus:
		return 1.0
	case types.VerdictMajority:
		return 0.8
	case types.VerdictSplit:
		return 0.5
	default:
		return 0.3
	}
}

// coalitionValue computes v(S) for a coalition given by member indices into
// the response slice. v(empty) = 0 by definition.
//
//	v(S) = 0.3*avgConfidence + 0.3*agreement + 0.4*verdictAlignment
//
// Agreement is 100 for singletons, otherwise 100 minus the standard
// deviation of the coalition's confidences, floored at zero.
func coalitionValue(responses []types.MemberResponse, coalition []int, kind types.VerdictKind) float64 {
	if len(coalition) == 0 {
		return 0
	}

	sum := 0.0
	for _, i := range coalition {
		sum += float64(responses[i].Confidence)
	}
	avg := sum / float64(len(coalition))

	agreement := 100.0
	if len(coalition) > 1 {
		variance := 0.0
		for _, i := range coalition {
			d := float64(responses[i].Confidence) - avg
			variance += d * d
		}
		variance /= float64(len(coalition))
		agreement = math.Max(0, 100-math.Sqrt(variance))
	}

	alignment := avg * verdictFactor(kind)

	return 0.3*avg + 0.3*agreement + 0.4*alignment
}

// ComputeShapley returns each member's exact Shapley value over the
// deliberation's response set. The member count is small (at most 8), so the
// exhaustive powerset formulation is used:
//
//	phi_i = sum over S not containing i of
//	        |S|!*(n-|S|-1)!/n! * (v(S+{i}) - v(S))
func ComputeShapley(responses []types.MemberResponse, kind types.VerdictKind) map[types.CouncilMember]float64 {
	n := len(responses)
	out := make(map[types.CouncilMember]float64, n)
	if n == 0 {
		return out
	}

	factorials := make([]float64, n+1)
	factorials[0] = 1
	for i := 1; i <= n; i++ {
		factorials[i] = factorials[i-1] * float64(i)
	}

	// Memoize coalition values by bitmask.
	values := make([]float64, 1<<n)
	for mask := 1; mask < 1<<n; mask++ {
		var coalition []int
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				coalition = append(coalition, i)
			}
		}
		values[mask] = coalitionValue(responses, coalition, kind)
	}

	for i := 0; i < n; i++ {
		phi := 0.0
		for mask := 0; mask < 1<<n; mask++ {
			if mask&(1<<i) != 0 {
				continue
			}
			size := popcount(mask)
			weight := factorials[size] * factorials[n-size-1] / factorials[n]
			phi += weight * (values[mask|1<<i] - values[mask])
		}
		out[responses[i].Member] = phi
	}

	return out
}

// Attribute computes the full per-member attribution for a deliberation:
// Shapley values, percentage contribution, response quality, challenge
// impact, and consensus alignment.
func Attribute(d *types.CouncilDeliberation) []MemberAttribution {
	shapley := ComputeShapley(d.Responses, d.Verdict.Kind)

	total := 0.0
	for _, phi := range shapley {
		total += phi
	}

	out := make([]MemberAttribution, 0, len(d.Responses))
	for _, r := range d.Responses {
		phi := shapley[r.Member]

		percent := 0.0
		if total != 0 {
			percent = phi / total * 100
		} else if len(d.Responses) > 0 {
			percent = 100 / float64(len(d.Responses))
		}

		out = append(out, MemberAttribution{
			Member:             r.Member,
			Shapley:            phi,
			Percent:            percent,
			ResponseQuality:    responseQuality(r),
			ChallengeImpact:    challengeImpact(r.Member, d.Challenges),
			ConsensusAlignment: consensusAlignment(r, d.Verdict.Kind),
		})
	}
	return out
}

// responseQuality rewards confident responses with substantive reasoning.
func responseQuality(r types.MemberResponse) int {
	quality := r.Confidence
	if len(r.Reasoning) > 100 {
		quality += 10
	}
	return min(100, quality)
}

// challengeImpact scores how a member fared in the challenge phase. Ordinary
// members lose points per challenge against them; LOKI earns points for
// raising serious challenges.
func challengeImpact(member types.CouncilMember, challenges []types.LokiChallenge) int {
	if member == types.MemberLoki {
		serious := 0
		for _, ch := range challenges {
			if ch.Severity == types.SeverityHigh || ch.Severity == types.SeverityCritical {
				serious++
			}
		}
		if len(challenges) == 0 {
			return 50
		}
		return min(100, 50+20*serious)
	}

	impact := 100
	for _, ch := range challenges {
		if ch.TargetMember != member {
			continue
		}
		switch ch.Severity {
		case types.SeverityCritical:
			impact -= 40
		case types.SeverityHigh:
			impact -= 25
		case types.SeverityMedium:
			impact -= 15
		default:
			impact -= 5
		}
	}
	return max(0, impact)
}

// consensusAlignment scales a member's confidence by the verdict factor:
// a confident answer inside a consensus aligns fully, the same answer inside
// a deadlock barely counts.
func consensusAlignment(r types.MemberResponse, kind types.VerdictKind) float64 {
	return math.Min(100, float64(r.Confidence)*verdictFactor(kind))
}

func popcount(mask int) int {
	count := 0
	for mask != 0 {
		mask &= mask - 1
		count++
	}
	return count
}
