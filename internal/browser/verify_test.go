// File: internal/browser/verify_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerdict(t *testing.T) {
	testCases := []struct {
		name       string
		probe      dashboardProbe
		wantOK     bool
		wantReason string
	}{
		{
			name: "fully populated dashboard passes",
			probe: dashboardProbe{
				DropdownExists:       true,
				MenuCount:            1,
				ItemCount:            4,
				GenerateButtonExists: true,
			},
			wantOK: true,
		},
		{
			name:       "missing container",
			probe:      dashboardProbe{},
			wantReason: "Missing `div.model-select.dropdown`.",
		},
		{
			name: "container without menu",
			probe: dashboardProbe{
				DropdownExists:       true,
				GenerateButtonExists: true,
			},
			wantReason: "Missing `.dropdown-menu` inside model select container.",
		},
		{
			name: "menu with a single entry",
			probe: dashboardProbe{
				DropdownExists:       true,
				MenuCount:            1,
				ItemCount:            1,
				GenerateButtonExists: true,
			},
			wantReason: "Expected multiple elements inside `.dropdown-menu`.",
		},
		{
			name: "missing generate button",
			probe: dashboardProbe{
				DropdownExists: true,
				MenuCount:      2,
				ItemCount:      5,
			},
			wantReason: "Missing `button#generateButton`.",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			checks := Verdict(tc.probe)
			assert.Equal(t, tc.wantOK, checks.OK)
			assert.Equal(t, tc.wantReason, checks.Reason)
			assert.Equal(t, tc.probe.DropdownExists, checks.ModelSelectDropdownExists)
			assert.Equal(t, tc.probe.MenuCount, checks.DropdownMenuCount)
			assert.Equal(t, tc.probe.ItemCount, checks.DropdownItemCount)
			assert.Equal(t, tc.probe.GenerateButtonExists, checks.GenerateButtonExists)
		})
	}
}
