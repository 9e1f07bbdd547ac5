package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Zimkada/BarTender-sub004/internal/config"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := map[string]config.Config{
		"short secret":  {AuthSecret: "short", ManagerPIN: "739154"},
		"short pin":     {AuthSecret: strongSecret, ManagerPIN: "7391"},
		"non digit pin": {AuthSecret: strongSecret, ManagerPIN: "73915a"},
		"sequential":    {AuthSecret: strongSecret, ManagerPIN: "123456"},
		"descending":    {AuthSecret: strongSecret, ManagerPIN: "987654"},
		"repeated":      {AuthSecret: strongSecret, ManagerPIN: "000000"},
		"common":        {AuthSecret: strongSecret, ManagerPIN: "112233"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, validateSecurityConfig(cfg))
		})
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	require.NoError(t, validateSecurityConfig(config.Config{AuthSecret: strongSecret, ManagerPIN: "739154"}))
}

func TestValidateSecurityConfigAllowsUnsetPIN(t *testing.T) {
	require.NoError(t, validateSecurityConfig(config.Config{AuthSecret: strongSecret}))
	require.Error(t, validateSecurityConfig(config.Config{AuthSecret: "short"}))
}
