package classifier

import "regexp"

// Bilingual pattern catalog (English and Portuguese). Order matters: the
// first matching type pattern wins, so more specific intents come first.

var conversationalPatterns = compile(
	`^(hi|hello|hey|yo|good (morning|afternoon|evening))\b`,
	`^(oi|ol[aá]|e a[ií]|bom dia|boa tarde|boa noite)\b`,
	`^(thanks|thank you|obrigad[oa])\b`,
	`^(how are you|tudo bem|como vai)`,
	`^(bye|goodbye|tchau|at[eé] logo)\b`,
)

type typeCatalogEntry struct {
	queryType QueryType
	patterns  []*regexp.Regexp
}

var typePatterns = []typeCatalogEntry{
	{TypeCurrentEvents, compile(
		`\b(today|yesterday|this (week|month|year)|latest|breaking|right now)\b`,
		`\b(hoje|ontem|nesta (semana|m[eê]s)|[uú]ltimas not[ií]cias|agora)\b`,
		`\bnews\b`, `\bnot[ií]cias?\b`,
	)},
	{TypeProcedural, compile(
		`^how (do|to|can) `, `\bstep[- ]by[- ]step\b`, `\binstructions?\b`,
		`^como (fa[çc]o|fazer|posso) `, `\bpasso a passo\b`,
	)},
	{TypeCreative, compile(
		`\b(write|compose|invent|imagine) (a|an|me|um|uma)\b`,
		`\b(poem|story|song|lyrics)\b`,
		`\b(escreva|componha|invente|imagine)\b`,
		`\b(poema|hist[oó]ria|can[çc][aã]o|letra)\b`,
	)},
	{TypeResearch, compile(
		`\b(compare|analy[sz]e|evaluate|evidence (for|against)|literature)\b`,
		`\b(compare|analise|avalie|evid[eê]ncias?)\b`,
		`\bstate of the art\b`, `\bestado da arte\b`,
	)},
	{TypeTheoretical, compile(
		`\b(what if|hypothetical|in theory|theoretically|suppose)\b`,
		`\b(e se|hipot[eé]tico|em teoria|teoricamente|suponha)\b`,
	)},
	{TypeFactual, compile(
		`^(what|who|when|where|which)\b`, `^is\b`, `^are\b`, `^does\b`, `^did\b`,
		`^(o que|qual|quem|quando|onde)\b`, `^[eé]\b`, `^s[aã]o\b`,
		`\b(define|definition|meaning of)\b`, `\b(defini[çc][aã]o|significado de)\b`,
	)},
}

type domainCatalogEntry struct {
	domain   Domain
	patterns []*regexp.Regexp
}

var domainPatterns = []domainCatalogEntry{
	{DomainMedicine, compile(
		`\b(disease|symptom|vaccine|diagnosis|treatment|drug|dose|cancer|virus)\b`,
		`\b(doen[çc]a|sintoma|vacina|diagn[oó]stico|tratamento|rem[eé]dio|c[aâ]ncer|v[ií]rus)\b`,
	)},
	{DomainMathematics, compile(
		`\b(theorem|equation|integral|derivative|prime|matrix|algebra|geometry)\b`,
		`\b(teorema|equa[çc][aã]o|integral|derivada|primo|matriz|[aá]lgebra|geometria)\b`,
	)},
	{DomainTechnology, compile(
		`\b(software|algorithm|computer|network|database|programming|api|cpu)\b`,
		`\b(software|algoritmo|computador|rede|banco de dados|programa[çc][aã]o)\b`,
	)},
	{DomainHistory, compile(
		`\b(history|war|empire|century|revolution|ancient|medieval)\b`,
		`\b(hist[oó]ria|guerra|imp[eé]rio|s[eé]culo|revolu[çc][aã]o|antig[oa]|medieval)\b`,
	)},
	{DomainLaw, compile(
		`\b(law|legal|court|statute|contract|constitution|liability)\b`,
		`\b(lei|jur[ií]dico|tribunal|estatuto|contrato|constitui[çc][aã]o)\b`,
	)},
	{DomainPhilosophy, compile(
		`\b(philosophy|ethics|morality|consciousness|free will|epistemology)\b`,
		`\b(filosofia|[eé]tica|moralidade|consci[eê]ncia|livre[- ]arb[ií]trio)\b`,
	)},
	{DomainLogic, compile(
		`\b(logic|syllogism|premise|fallacy|deduction|induction)\b`,
		`\b(l[oó]gica|silogismo|premissa|fal[aá]cia|dedu[çc][aã]o|indu[çc][aã]o)\b`,
	)},
	{DomainCreative, compile(
		`\b(art|painting|music|novel|poetry|design|film)\b`,
		`\b(arte|pintura|m[uú]sica|romance|poesia|design|filme)\b`,
	)},
	{DomainScience, compile(
		`\b(physics|chemistry|biology|quantum|particle|evolution|energy|light|speed)\b`,
		`\b(f[ií]sica|qu[ií]mica|biologia|qu[aâ]ntic[ao]|part[ií]cula|evolu[çc][aã]o|energia|luz|velocidade)\b`,
	)},
}

var controversialPatterns = compile(
	`\b(conspiracy|hoax|cover[- ]?up|controversial|debate[d]?)\b`,
	`\b(conspira[çc][aã]o|farsa|pol[eê]mic[ao]|controvers[oa])\b`,
	`\b(vaccines? cause|flat earth|climate (hoax|denial)|5g)\b`,
	`\b(terra plana|aquecimento global [eé] (farsa|mentira))\b`,
)

// clauseMarkers contribute to complexity scoring beyond raw word count.
var clauseMarkers = regexp.MustCompile(
	`\b(if|unless|whereas|although|however|because|therefore|and|or|but|` +
		`se|a menos que|embora|entretanto|porque|portanto|e|ou|mas)\b|[,;]`)

var stopwords = map[string]struct{}{
	// English
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "has": {}, "have": {}, "what": {}, "which": {},
	"when": {}, "where": {}, "who": {}, "why": {}, "how": {}, "does": {},
	"did": {}, "this": {}, "that": {}, "with": {}, "from": {}, "they": {},
	"will": {}, "would": {}, "there": {}, "their": {}, "about": {},
	// Portuguese
	"que": {}, "para": {}, "com": {}, "uma": {}, "por": {}, "mais": {},
	"dos": {}, "das": {}, "como": {}, "mas": {}, "foi": {}, "ele": {},
	"ela": {}, "seu": {}, "sua": {}, "quando": {}, "muito": {}, "nos": {},
	"qual": {}, "quem": {}, "onde": {}, "isso": {}, "essa": {}, "este": {},
	"esta": {}, "pelo": {}, "pela": {}, "são": {}, "tem": {}, "não": {},
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}
