package fnol

import (
	"reflect"
	"testing"

	"github.com/opensource-claims/kestrel/internal/domain"
)

func TestClassify(t *testing.T) {
	t.Run("ClaimType", func(t *testing.T) {
		cases := []struct {
			name   string
			fields domain.Fields
			want   domain.ClaimType
		}{
			{"VehicleAsset", domain.Fields{AssetType: "Vehicle"}, domain.ClaimAuto},
			{"CarAsset", domain.Fields{AssetType: "company car"}, domain.ClaimAuto},
			{"AutoLOB", domain.Fields{LineOfBusiness: "Auto"}, domain.ClaimAuto},
			{"MotorLOB", domain.Fields{LineOfBusiness: "commercial motor"}, domain.ClaimAuto},
			{"BuildingAsset", domain.Fields{AssetType: "building"}, domain.ClaimProperty},
			{"HomeAsset", domain.Fields{AssetType: "Home"}, domain.ClaimProperty},
			{"PropertyLOB", domain.Fields{LineOfBusiness: "Property"}, domain.ClaimProperty},
			{"HomeownerLOB", domain.Fields{LineOfBusiness: "homeowner"}, domain.ClaimProperty},
			{"LiabilityLOB", domain.Fields{LineOfBusiness: "General Liability"}, domain.ClaimLiability},
			{"LiabilityNarrative", domain.Fields{Description: "third party liability dispute"}, domain.ClaimLiability},
			{"NoSignal", domain.Fields{Description: "something happened"}, domain.ClaimOther},
			{"Empty", domain.Fields{}, domain.ClaimOther},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				got := Classify(tc.fields).ClaimType
				if got != tc.want {
					t.Errorf("expected %s, got %s", tc.want, got)
				}
			})
		}
	})

	t.Run("AssetTypeBeatsLOB", func(t *testing.T) {
		// Asset says vehicle, LOB says property: the auto rules come first
		f := domain.Fields{AssetType: "vehicle", LineOfBusiness: "property"}
		if got := Classify(f).ClaimType; got != domain.ClaimAuto {
			t.Errorf("expected auto, got %s", got)
		}
	})

	t.Run("SuspiciousKeywords", func(t *testing.T) {
		f := domain.Fields{
			Description: "The damage seems STAGED and the story is inconsistent",
		}

		flags := Classify(f).RiskFlags
		want := []string{
			"suspicious_keyword:inconsistent",
			"suspicious_keyword:staged",
		}
		if !reflect.DeepEqual(flags, want) {
			t.Errorf("expected %v, got %v", want, flags)
		}
	})

	t.Run("KeywordsInComments", func(t *testing.T) {
		f := domain.Fields{Comments: "possible fraud per adjuster"}

		flags := Classify(f).RiskFlags
		if len(flags) != 1 || flags[0] != "suspicious_keyword:fraud" {
			t.Errorf("expected fraud flag from comments, got %v", flags)
		}
	})

	t.Run("KeywordDeduplicated", func(t *testing.T) {
		f := domain.Fields{
			Description: "fraud fraud fraud",
			Comments:    "likely fraud",
		}

		flags := Classify(f).RiskFlags
		if len(flags) != 1 {
			t.Errorf("expected single fraud flag, got %v", flags)
		}
	})

	t.Run("HighValue", func(t *testing.T) {
		cases := []struct {
			name    string
			damage  *float64
			flagged bool
		}{
			{"AboveThreshold", damage(500_001), true},
			{"ExactThreshold", damage(500_000), false}, // strictly greater
			{"BelowThreshold", damage(100_000), false},
			{"Absent", nil, false},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				f := domain.Fields{EstimatedDamage: tc.damage}
				flags := Classify(f).RiskFlags
				has := domain.HasFlagWithPrefix(flags, domain.FlagHighValue)
				if has != tc.flagged {
					t.Errorf("expected flagged=%v, got flags %v", tc.flagged, flags)
				}
			})
		}
	})

	t.Run("KeywordFlagsPrecedeHighValue", func(t *testing.T) {
		f := domain.Fields{
			Description:     "staged accident",
			EstimatedDamage: damage(600_000),
		}

		flags := Classify(f).RiskFlags
		want := []string{"suspicious_keyword:staged", "high_value_claim"}
		if !reflect.DeepEqual(flags, want) {
			t.Errorf("expected %v, got %v", want, flags)
		}
	})
}
