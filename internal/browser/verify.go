// File: internal/browser/verify.go
package browser

import (
	"context"

	"github.com/xkilldash9x/regsmoke-cli/internal/report"
)

// dashboardProbe is the raw DOM survey taken on the page reached after
// submitting the registration form.
type dashboardProbe struct {
	DropdownExists       bool `json:"dropdownExists"`
	MenuCount            int  `json:"menuCount"`
	ItemCount            int  `json:"itemCount"`
	GenerateButtonExists bool `json:"generateButtonExists"`
}

// dashboardProbeJS surveys the generation dashboard in one round trip. The
// item count prefers direct children of the first menu and falls back to
// interactive descendants for markup that nests options deeper.
const dashboardProbeJS = `(() => {
	const container = document.querySelector('div.model-select.dropdown');
	const menus = container ? container.querySelectorAll('.dropdown-menu') : [];
	let items = 0;
	if (menus.length > 0) {
		items = menus[0].querySelectorAll(':scope > *').length;
		if (items === 0) {
			items = menus[0].querySelectorAll('li, a, button, div').length;
		}
	}
	return {
		dropdownExists: !!container,
		menuCount: menus.length,
		itemCount: items,
		generateButtonExists: !!document.querySelector('button#generateButton'),
	};
})()`

// probeDashboard runs the survey script against the live page.
func probeDashboard(ctx context.Context, s *Session) (dashboardProbe, error) {
	var probe dashboardProbe
	err := s.Evaluate(ctx, dashboardProbeJS, &probe)
	return probe, err
}

// Verdict turns a probe into the pass/fail checks recorded in the report.
// The dashboard counts as reached when the model select container exists
// with a populated menu of at least two entries and the generate button is
// present.
func Verdict(probe dashboardProbe) report.DashboardChecks {
	checks := report.DashboardChecks{
		ModelSelectDropdownExists: probe.DropdownExists,
		DropdownMenuCount:         probe.MenuCount,
		DropdownItemCount:         probe.ItemCount,
		GenerateButtonExists:      probe.GenerateButtonExists,
	}

	switch {
	case !probe.DropdownExists:
		checks.Reason = "Missing `div.model-select.dropdown`."
	case probe.MenuCount == 0:
		checks.Reason = "Missing `.dropdown-menu` inside model select container."
	case probe.ItemCount < 2:
		checks.Reason = "Expected multiple elements inside `.dropdown-menu`."
	case !probe.GenerateButtonExists:
		checks.Reason = "Missing `button#generateButton`."
	default:
		checks.OK = true
	}
	return checks
}
