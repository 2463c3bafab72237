package cleanup

import (
	"regexp"
	"strings"

	"github.com/dotcommander/refresher/internal/models"
)

// CleanupResources plans and then applies deletions against provider.
// The only error is a failure to read the provider's count while planning;
// every per-item problem lands in the report.
func CleanupResources(provider ResourceProvider, predicate Predicate, opts ...Option) (models.Report, error) {
	plan, err := PlanDeletions(provider, predicate, opts...)
	if err != nil {
		return models.Report{}, err
	}
	return ApplyDeletions(provider, plan, opts...), nil
}

// SuffixPredicate matches names ending in any of suffixes.
func SuffixPredicate(suffixes ...string) Predicate {
	return func(h models.ResourceHandle) bool {
		for _, s := range suffixes {
			if s != "" && strings.HasSuffix(h.Name, s) {
				return true
			}
		}
		return false
	}
}

// PatternPredicate matches names accepted by re.
func PatternPredicate(re *regexp.Regexp) Predicate {
	return func(h models.ResourceHandle) bool {
		return re != nil && re.MatchString(h.Name)
	}
}

// DuplicateNamePredicate matches the second and later occurrences of a name
// in scan order. It is stateful and good for a single scan only.
func DuplicateNamePredicate() Predicate {
	seen := make(map[string]struct{})
	return func(h models.ResourceHandle) bool {
		if _, ok := seen[h.Name]; ok {
			return true
		}
		seen[h.Name] = struct{}{}
		return false
	}
}

// AnyOf matches when any non-nil predicate matches. Every predicate sees
// every resource, so stateful predicates stay consistent.
func AnyOf(predicates ...Predicate) Predicate {
	return func(h models.ResourceHandle) bool {
		matched := false
		for _, p := range predicates {
			if p != nil && p(h) {
				matched = true
			}
		}
		return matched
	}
}
