package usecase

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"costcompass/internal/domain"
)

// Classification keyword lists, checked in order; first match wins.
var (
	comparisonKeywords   = []string{"compare", "comparison", "vs", "versus", "difference"}
	optimizationKeywords = []string{"optimize", "reduce", "save", "cheaper", "alternative"}
	scenarioKeywords     = []string{"what if", "scenario", "instead", "change"}
	modificationKeywords = []string{"add", "include", "also", "additionally"}
	pricingKeywords      = []string{"cost", "price", "estimate", "budget"}

	// scenarioTrackingKeywords decides whether a turn lands in scenario
	// history, independent of its primary classification.
	scenarioTrackingKeywords = []string{
		"compare", "comparison", "vs", "versus", "difference",
		"what if", "scenario", "alternative",
	}
)

// ClassifyQuery buckets a query into one mutually exclusive type. The check
// order matters: "compare the cost" is a comparison, not a pricing query.
func ClassifyQuery(query string) domain.QueryType {
	q := strings.ToLower(query)
	switch {
	case containsAny(q, comparisonKeywords):
		return domain.QueryComparison
	case containsAny(q, optimizationKeywords):
		return domain.QueryOptimization
	case containsAny(q, scenarioKeywords):
		return domain.QueryScenario
	case containsAny(q, modificationKeywords):
		return domain.QueryModification
	case containsAny(q, pricingKeywords):
		return domain.QueryPricing
	default:
		return domain.QueryGeneral
	}
}

// IsComparisonQuery reports whether a turn belongs in scenario history.
func IsComparisonQuery(query string, qt domain.QueryType) bool {
	if qt == domain.QueryScenario || qt == domain.QueryModification {
		return true
	}
	return containsAny(strings.ToLower(query), scenarioTrackingKeywords)
}

func containsAny(lowered string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// serviceVocabulary is the fixed set of recognized service short names.
// Matches are reported upper-case.
var serviceVocabulary = []string{
	"ec2", "rds", "s3", "lambda", "eks", "ecs", "elb", "alb", "nlb",
	"cloudfront", "route53", "dynamodb", "redshift", "emr", "sqs", "sns",
}

var (
	instanceTypeRE = regexp.MustCompile(`(t[2-4]\.[a-z]+|m[4-6]\.[a-z]+|c[4-6]\.[a-z]+|r[4-6]\.[a-z]+|db\.[a-z0-9]+\.[a-z]+)`)
	regionRE       = regexp.MustCompile(`(us|eu|ap|ca|sa)-[a-z]+-[0-9]+`)

	usersRE     = regexp.MustCompile(`([0-9][0-9,]*)\s*(?:concurrent\s+)?users`)
	requestsRE  = regexp.MustCompile(`([0-9][0-9,]*)\s*(?:million\s+|k\s+)?requests`)
	storageRE   = regexp.MustCompile(`([0-9][0-9,]*)\s*(gb|tb)\s*(?:of\s+)?storage`)
	bandwidthRE = regexp.MustCompile(`([0-9][0-9,]*)\s*(gb|tb)\s*(?:of\s+)?(?:bandwidth|transfer)`)

	totalCostRE   = regexp.MustCompile(`\$([0-9,]+\.?[0-9]*)\s*(?:per\s+)?(month|year)`)
	serviceCostRE = regexp.MustCompile(`(?i)(EC2|RDS|S3|Lambda|ELB|ALB|NLB)[^$\n]*?\$([0-9,]+\.?[0-9]*)`)
)

// ExtractArchitecture scrapes architecture facts from free text. It is
// best-effort: absence of a match is not an error and the result may be
// partial. It never fails.
func ExtractArchitecture(text string) *domain.Architecture {
	lowered := strings.ToLower(text)
	arch := &domain.Architecture{UpdatedAt: time.Now()}

	for _, svc := range serviceVocabulary {
		if strings.Contains(lowered, svc) {
			arch.Services = append(arch.Services, strings.ToUpper(svc))
		}
	}

	for _, m := range dedupe(instanceTypeRE.FindAllString(lowered, -1)) {
		arch.InstanceTypes = append(arch.InstanceTypes, m)
	}
	for _, m := range dedupe(regionRE.FindAllString(lowered, -1)) {
		arch.Regions = append(arch.Regions, m)
	}

	patterns := map[string]string{}
	if m := usersRE.FindStringSubmatch(lowered); m != nil {
		patterns["users"] = m[1]
	}
	if m := requestsRE.FindStringSubmatch(lowered); m != nil {
		patterns["requests"] = m[1]
	}
	if m := storageRE.FindStringSubmatch(lowered); m != nil {
		patterns["storage"] = m[1] + " " + m[2]
	}
	if m := bandwidthRE.FindStringSubmatch(lowered); m != nil {
		patterns["bandwidth"] = m[1] + " " + m[2]
	}
	if len(patterns) > 0 {
		arch.UsagePatterns = patterns
	}

	return arch
}

// ExtractCosts scrapes dollar figures from free text. The last total-shaped
// match wins, so a closing summary line beats earlier itemized amounts.
// Never fails; an empty estimate means nothing matched.
func ExtractCosts(text string) *domain.CostEstimate {
	lowered := strings.ToLower(text)
	est := &domain.CostEstimate{Currency: "USD"}

	for _, m := range totalCostRE.FindAllStringSubmatch(lowered, -1) {
		amount, err := parseAmount(m[1])
		if err != nil {
			continue
		}
		switch m[2] {
		case "month":
			est.MonthlyTotal = amount
		case "year":
			est.AnnualTotal = amount
		}
	}

	for _, m := range serviceCostRE.FindAllStringSubmatch(text, -1) {
		amount, err := parseAmount(m[2])
		if err != nil {
			continue
		}
		if est.ServiceBreakdown == nil {
			est.ServiceBreakdown = map[string]float64{}
		}
		est.ServiceBreakdown[strings.ToUpper(m[1])] = amount
	}

	return est
}

func parseAmount(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			out = append(out, it)
		}
	}
	return out
}
