package disinfo

import "regexp"

// Content-layer pattern catalogs. Counts feed the weighted scoring in
// filter.go; the expressions themselves stay deliberately coarse — this is
// a triage signal, not a truth oracle.

var emotionalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(shocking|outrageous|terrifying|horrifying|unbelievable)\b`),
	regexp.MustCompile(`(?i)\b(you won'?t believe|jaw[- ]dropping|mind[- ]blowing)\b`),
	regexp.MustCompile(`(?i)\b(destroyed|slammed|obliterated|annihilated)\b`),
	regexp.MustCompile(`(?i)\b(furious|enraged|disgusted|devastated)\b`),
}

var conspiracyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(they don'?t want you to know|the truth they hide)\b`),
	regexp.MustCompile(`(?i)\b(cover[- ]?up|deep state|new world order|illuminati)\b`),
	regexp.MustCompile(`(?i)\b(mainstream media (lies|won'?t report)|msm lies)\b`),
	regexp.MustCompile(`(?i)\b(wake up|sheeple|do your own research)\b`),
	regexp.MustCompile(`(?i)\b(secret (plan|agenda|program)|hidden agenda)\b`),
}

var vagueAttributionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(sources say|experts claim|some say|many believe)\b`),
	regexp.MustCompile(`(?i)\b(it is said|reportedly|allegedly|rumou?rs? (say|suggest))\b`),
	regexp.MustCompile(`(?i)\b(insiders reveal|a source close to|anonymous (source|official))\b`),
	regexp.MustCompile(`(?i)\b(studies show|research proves)\b`),
}

var absoluteClaimPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(always|never|everyone knows|nobody can deny|100% (proof|proven|certain))\b`),
	regexp.MustCompile(`(?i)\b(undeniable|irrefutable|absolute (proof|truth))\b`),
	regexp.MustCompile(`(?i)\b(the only (truth|explanation)|without (any )?doubt)\b`),
}

var urgencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(share (this )?before (it'?s|its) (deleted|too late))\b`),
	regexp.MustCompile(`(?i)\b(act now|time is running out|urgent(ly)?!|breaking!)\b`),
	regexp.MustCompile(`(?i)\b(spread the word|make this viral|don'?t let them silence)\b`),
}

// presentTimePatterns mark language that anchors content to "now"; combined
// with an old publication date they indicate recycled content.
var presentTimePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(happening (right )?now|just (in|announced|released))\b`),
	regexp.MustCompile(`(?i)\b(today|tonight|this morning|breaking news)\b`),
	regexp.MustCompile(`(?i)\b(moments ago|currently unfolding)\b`),
}

// consensusTopic pairs a scientific topic with the denial phrasings that
// contradict settled consensus on it.
type consensusTopic struct {
	topic    string
	patterns []*regexp.Regexp
}

var consensusTopics = []consensusTopic{
	{"vaccines", []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bvaccines? (cause|causes|linked to) autism\b`),
		regexp.MustCompile(`(?i)\bvaccines? are (poison|toxic|deadly)\b`),
	}},
	{"climate", []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bclimate change is a (hoax|lie|scam)\b`),
		regexp.MustCompile(`(?i)\bglobal warming (is fake|isn'?t real)\b`),
	}},
	{"earth-shape", []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(the )?earth is flat\b`),
		regexp.MustCompile(`(?i)\bflat earth (proof|proven|evidence)\b`),
	}},
	{"evolution", []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bevolution is (just a theory|a lie|fake)\b`),
	}},
	{"5g", []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b5g (causes|spreads) (covid|cancer|disease)\b`),
	}},
}

func countMatches(patterns []*regexp.Regexp, content string) int {
	n := 0
	for _, p := range patterns {
		n += len(p.FindAllStringIndex(content, -1))
	}
	return n
}
