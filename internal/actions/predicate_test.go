package actions

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/refresher/internal/models"
)

func TestBuildPredicate_RequiresAPolicy(t *testing.T) {
	_, err := BuildPredicate(PredicateOptions{})
	require.ErrorIs(t, err, ErrNoCleanupPolicy)
}

func TestBuildPredicate_InvalidPattern(t *testing.T) {
	_, err := BuildPredicate(PredicateOptions{Pattern: "("})
	require.Error(t, err)
}

func TestBuildPredicate_CombinesRulesWithOr(t *testing.T) {
	pred, err := BuildPredicate(PredicateOptions{
		Suffixes:   []string{"_copy"},
		Duplicates: true,
		Pattern:    `^tmp_`,
	})
	require.NoError(t, err)

	var matched []string
	for i, name := range []string{"Orders", "Orders_copy", "tmp_scratch", "Customers", "Orders"} {
		if pred(models.ResourceHandle{Name: name, Position: i + 1}) {
			matched = append(matched, name)
		}
	}
	require.Equal(t, []string{"Orders_copy", "tmp_scratch", "Orders"}, matched)
}
