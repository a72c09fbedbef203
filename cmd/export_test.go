// cmd/export_test.go - Unit tests for export flag handling
package cmd

import (
	"testing"
)

func TestExportTargetsBboxTakesSinglePostalCodeAsID(t *testing.T) {
	targets, err := exportTargets("", "Kallio", "24.94,60.18,24.96,60.19", []string{"00530"}, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("Expected 1 target, got %d", len(targets))
	}
	if targets[0].regionID != "00530" || targets[0].postalCode != "" {
		t.Errorf("Expected bbox target with id 00530, got %+v", targets[0])
	}
	if targets[0].name != "Kallio" {
		t.Errorf("Expected name Kallio, got %q", targets[0].name)
	}
}

func TestExportTargetsBboxNeedsID(t *testing.T) {
	if _, err := exportTargets("", "", "24.94,60.18,24.96,60.19", nil, nil); err == nil {
		t.Error("Expected error for bbox without region id")
	}
}

func TestExportTargetsRepeatedFlags(t *testing.T) {
	targets, err := exportTargets("", "", "", []string{"00100", "00530"},
		[]string{"kallio:24.94,60.18,24.96,60.19", "toolo:24.91,60.17,24.93,60.19"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := []string{"kallio", "toolo", "00100", "00530"}
	if len(targets) != len(want) {
		t.Fatalf("Expected %d targets, got %d", len(want), len(targets))
	}
	for i, id := range want {
		if targets[i].regionID != id {
			t.Errorf("Expected target %d to be %s, got %s", i, id, targets[i].regionID)
		}
	}
	if targets[2].postalCode != "00100" {
		t.Errorf("Expected postal-code target, got %+v", targets[2])
	}
	if targets[0].bounds.West != 24.94 || targets[1].bounds.North != 60.19 {
		t.Errorf("Unexpected region bounds %v %v", targets[0].bounds, targets[1].bounds)
	}
}

func TestExportTargetsRejectsDuplicates(t *testing.T) {
	if _, err := exportTargets("", "", "", []string{"00100", "00100"}, nil); err == nil {
		t.Error("Expected error for a repeated postal code")
	}
}

func TestParseRegion(t *testing.T) {
	target, err := parseRegion(" kallio :24.94,60.18,24.96,60.19")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if target.regionID != "kallio" {
		t.Errorf("Expected kallio, got %q", target.regionID)
	}

	for _, raw := range []string{"24.94,60.18,24.96,60.19", ":24.94,60.18,24.96,60.19", "kallio:1,2,3"} {
		if _, err := parseRegion(raw); err == nil {
			t.Errorf("Expected error for %q", raw)
		}
	}
}
