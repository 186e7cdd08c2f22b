package health

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerAllHealthy(t *testing.T) {
	c := NewChecker()
	c.RunCheck("consensus", func() error { return nil })
	c.RunCheck("transport", func() error { return nil })

	assert.Equal(t, StatusHealthy, c.GetOverallStatus())
}

func TestCheckerDegradedWhenSomeFail(t *testing.T) {
	c := NewChecker()
	c.RunCheck("consensus", func() error { return nil })
	c.RunCheck("transport", func() error { return errors.New("no peers connected") })

	assert.Equal(t, StatusDegraded, c.GetOverallStatus())
}

func TestCheckerUnhealthyWhenAllFail(t *testing.T) {
	c := NewChecker()
	c.RunCheck("consensus", func() error { return errors.New("no leader") })

	assert.Equal(t, StatusUnhealthy, c.GetOverallStatus())
}

func TestCheckerRecovers(t *testing.T) {
	c := NewChecker()
	c.RunCheck("consensus", func() error { return errors.New("no leader") })
	require.Equal(t, StatusUnhealthy, c.GetOverallStatus())

	c.RunCheck("consensus", func() error { return nil })
	assert.Equal(t, StatusHealthy, c.GetOverallStatus())
}

func TestCheckerReportsMessages(t *testing.T) {
	c := NewChecker()
	c.RunCheck("consensus", func() error { return errors.New("no leader") })

	checks := c.GetAllChecks()
	require.Len(t, checks, 1)
	assert.Equal(t, "consensus", checks[0].Name)
	assert.Equal(t, StatusUnhealthy, checks[0].Status)
	assert.Equal(t, "no leader", checks[0].Message)
}
