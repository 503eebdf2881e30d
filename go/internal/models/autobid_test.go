package models

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestAutoBidConfig_Effective(t *testing.T) {
	cfg := AutoBidConfig{
		TeamID: 1,
		Global: AutoBidRules{MaxBid: 50, OnlySellingStage: true},
		PerTarget: map[TargetKey]AutoBidOverride{
			{Type: ItemTypePlayer, ID: 10}: {MaxBid: intPtr(120), OnlySellingStage: boolPtr(false)},
		},
	}

	tests := []struct {
		name   string
		target TargetKey
		want   AutoBidRules
	}{
		{
			name:   "no override uses global",
			target: TargetKey{Type: ItemTypePlayer, ID: 11},
			want:   AutoBidRules{MaxBid: 50, OnlySellingStage: true},
		},
		{
			name:   "override replaces set fields only",
			target: TargetKey{Type: ItemTypePlayer, ID: 10},
			want:   AutoBidRules{MaxBid: 120, OnlySellingStage: false},
		},
		{
			name:   "club with same id is a different target",
			target: TargetKey{Type: ItemTypeClub, ID: 10},
			want:   AutoBidRules{MaxBid: 50, OnlySellingStage: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, cfg.Effective(tt.target)); diff != "" {
				t.Errorf("Effective() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAutoBidConfig_JSONKeepsPerTarget(t *testing.T) {
	cfg := AutoBidConfig{
		TeamID:  3,
		Enabled: true,
		PerTarget: map[TargetKey]AutoBidOverride{
			{Type: ItemTypeClub, ID: 4}: {NeverSecondBidder: boolPtr(true)},
		},
	}
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)

	var got AutoBidConfig
	require.NoError(t, json.Unmarshal(raw, &got))
	require.True(t, got.Enabled)
	require.Equal(t, true, *got.PerTarget[TargetKey{Type: ItemTypeClub, ID: 4}].NeverSecondBidder)
}
