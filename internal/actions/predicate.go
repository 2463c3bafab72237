package actions

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/dotcommander/refresher/internal/cleanup"
)

// ErrNoCleanupPolicy is returned when no selection rule was requested.
var ErrNoCleanupPolicy = errors.New("no cleanup policy selected (use --suffix, --duplicates or --pattern)")

// PredicateOptions selects which connections cleanup removes.
// Rules combine with OR.
type PredicateOptions struct {
	Suffixes   []string
	Duplicates bool
	Pattern    string
}

// Empty reports whether no rule is set.
func (o PredicateOptions) Empty() bool {
	return len(o.Suffixes) == 0 && !o.Duplicates && o.Pattern == ""
}

// BuildPredicate composes the requested rules. Each call returns a fresh
// predicate; the duplicate rule remembers names across one scan only.
func BuildPredicate(opts PredicateOptions) (cleanup.Predicate, error) {
	if opts.Empty() {
		return nil, ErrNoCleanupPolicy
	}

	var preds []cleanup.Predicate
	if len(opts.Suffixes) > 0 {
		preds = append(preds, cleanup.SuffixPredicate(opts.Suffixes...))
	}
	if opts.Duplicates {
		preds = append(preds, cleanup.DuplicateNamePredicate())
	}
	if opts.Pattern != "" {
		re, err := regexp.Compile(opts.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid --pattern: %w", err)
		}
		preds = append(preds, cleanup.PatternPredicate(re))
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return cleanup.AnyOf(preds...), nil
}
