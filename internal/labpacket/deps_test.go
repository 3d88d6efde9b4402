package labpacket

import (
	"testing"

	"labplanner/testutil"
)

func TestPlanningStagesDoNotReachStorage(t *testing.T) {
	for _, pkg := range []string{
		"labplanner/internal/labpacket",
		"labplanner/internal/inventory",
		"labplanner/internal/oligo",
		"labplanner/internal/construction",
	} {
		testutil.AssertNoTransitiveDependency(t, pkg, testutil.InfraImportForbidden, pkg+" plans without a store")
		testutil.AssertNoTransitiveDependency(t, pkg, testutil.PrefixForbidden("labplanner/internal/artifact"), pkg+" plans without a store")
	}
}
