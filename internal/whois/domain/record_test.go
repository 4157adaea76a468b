package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testPolicy() RegistrarPolicy {
	return RegistrarPolicy{
		RootDN:     "cn=root,dc=opennic,dc=glue",
		TopTier:    []string{"ns1", "ns2"},
		TierSuffix: ".opennic.glue",
		RootLabel:  "OpenNIC",
	}
}

func TestRegistrarPolicy_Label(t *testing.T) {
	policy := testPolicy()

	tests := []struct {
		name      string
		creatorDN string
		expected  string
	}{
		{
			name:      "top tier registrar gets suffix",
			creatorDN: "uid=ns1,o=users,dc=opennic,dc=glue",
			expected:  "ns1.opennic.glue",
		},
		{
			name:      "top tier match is case insensitive",
			creatorDN: "uid=NS2,o=users,dc=opennic,dc=glue",
			expected:  "NS2.opennic.glue",
		},
		{
			name:      "root account renders fixed label",
			creatorDN: "cn=root,dc=opennic,dc=glue",
			expected:  "OpenNIC",
		},
		{
			name:      "unknown creator falls back to raw identifier",
			creatorDN: "uid=someone,o=users,dc=opennic,dc=glue",
			expected:  "someone",
		},
		{
			name:      "empty creator",
			creatorDN: "",
			expected:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, policy.Label(tt.creatorDN))
		})
	}
}

func TestRegistrarPolicy_TopTierBeatsRoot(t *testing.T) {
	// If the root's local id were ever listed as a top-tier registrar the
	// allow-list wins, matching the lookup order of the label derivation.
	policy := testPolicy()
	policy.TopTier = append(policy.TopTier, "root")
	assert.Equal(t, "root.opennic.glue", policy.Label("cn=root,dc=opennic,dc=glue"))
}
