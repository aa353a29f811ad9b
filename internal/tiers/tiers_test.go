package tiers

import "testing"

func TestWithHourlyLimits(t *testing.T) {
	table := Configs.WithHourlyLimits(5, 0)

	free, err := table.Get(TierFree)
	if err != nil {
		t.Fatal(err)
	}
	if free.HourlyMessages != 5 {
		t.Errorf("free HourlyMessages = %d, want 5", free.HourlyMessages)
	}

	pro, _ := table.Get(TierPro)
	if pro.HourlyMessages != Configs[TierPro].HourlyMessages {
		t.Errorf("pro limit changed to %d", pro.HourlyMessages)
	}

	if Configs[TierFree].HourlyMessages == 5 {
		t.Error("WithHourlyLimits modified the default table")
	}
}

func TestResearchModeIsProOnly(t *testing.T) {
	if Configs[TierFree].IsFeatureAllowed(FeatureResearchMode) {
		t.Error("free tier must not allow research mode")
	}
	if !Configs[TierPro].IsFeatureAllowed(FeatureResearchMode) {
		t.Error("pro tier must allow research mode")
	}
}

func TestGetUnknownTier(t *testing.T) {
	if _, err := Get("enterprise"); err == nil {
		t.Error("expected error for unknown tier")
	}
}
