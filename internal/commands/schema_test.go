package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFlagType(t *testing.T) {
	require.Equal(t, "integer", normalizeFlagType("int64"))
	require.Equal(t, "boolean", normalizeFlagType("bool"))
	require.Equal(t, "string", normalizeFlagType("duration"))
	require.Equal(t, "array", normalizeFlagType("stringSlice"))
	require.Equal(t, "string", normalizeFlagType("string"))
}

func TestTypedFlagDefault(t *testing.T) {
	require.Equal(t, true, typedFlagDefault("bool", "true"))
	require.Equal(t, 42, typedFlagDefault("int", "42"))
	require.Equal(t, "oops", typedFlagDefault("int", "oops"))
	require.Equal(t, "abc", typedFlagDefault("string", "abc"))
}

func TestIsRequiredFlag(t *testing.T) {
	reqByAnnotation := &pflag.Flag{Annotations: map[string][]string{cobra.BashCompOneRequiredFlag: {"true"}}}
	require.True(t, isRequiredFlag(reqByAnnotation))

	reqByUsage := &pflag.Flag{Usage: "Workbook name (required)"}
	require.True(t, isRequiredFlag(reqByUsage))

	notReq := &pflag.Flag{Usage: "optional flag"}
	require.False(t, isRequiredFlag(notReq))
}

func TestParseEnumValues(t *testing.T) {
	require.Equal(t, []string{"constant", "exponential"}, parseEnumValues("Backoff strategy: constant|exponential"))
	require.Equal(t, []string{"debug", "info", "warn", "error"}, parseEnumValues("Log level: debug|info|warn|error (default: $REFRESHER_LOG_LEVEL)"))
	require.Equal(t, []string{"removed", "not_found"}, parseEnumValues("Outcome (removed, not_found)"))
	require.Nil(t, parseEnumValues("Example only (e.g. foo, bar)"))
	require.Nil(t, parseEnumValues(""))
}

func TestNormalizeEnumParts(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, normalizeEnumParts([]string{" a ", "[b]", "skip me", "1.2"}))
	require.Nil(t, normalizeEnumParts([]string{"onlyone"}))
}

func TestBuildCommandSchema_CollectsFlagsAndRequired(t *testing.T) {
	root := NewRootCmd("test")
	refresh, _, err := root.Find([]string{"refresh"})
	require.NoError(t, err)

	schema := buildCommandSchema(refresh)
	require.Equal(t, "refresher refresh", schema.Command)

	props := schema.ArgsSchema["properties"].(map[string]any)
	require.Contains(t, props, "db-path")
	require.Contains(t, props, "max-attempts")

	strategy := props["backoff-strategy"].(map[string]any)
	require.Equal(t, []string{"constant", "exponential"}, strategy["enum"])

	required := schema.ArgsSchema["required"].([]string)
	require.Equal(t, []string{"workbook"}, required)
}

func TestCollectCommandSchemas_SkipsGroupsSchemaAndHidden(t *testing.T) {
	root := &cobra.Command{Use: "refresher"}
	schemaCmd := &cobra.Command{Use: "schema", RunE: func(*cobra.Command, []string) error { return nil }}
	group := &cobra.Command{Use: "conn"}
	leaf := &cobra.Command{Use: "list", Short: "List", RunE: func(*cobra.Command, []string) error { return nil }}
	hidden := &cobra.Command{Use: "secret", Hidden: true, RunE: func(*cobra.Command, []string) error { return nil }}
	group.AddCommand(leaf)
	root.AddCommand(schemaCmd, group, hidden)

	var out []commandArgSchema
	collectCommandSchemas(root, &out)

	require.Len(t, out, 1)
	require.Equal(t, "refresher conn list", out[0].Command)
}
