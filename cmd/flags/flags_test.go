package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvVar(t *testing.T) {
	require.Equal(t, []string{"CUSTODY_LOG_JSON"}, EnvVar("log-json"))
	require.Equal(t, []string{"CUSTODY_SHARE_ACTIVE_TTL"}, EnvVar("share-active-ttl"))
}
