package policy

import "time"

// SeedDefaults loads the pilot payer policies and fee schedules.
// Production deployments replace these through the admin API.
func SeedDefaults(s *Store) error {
	policies := []PayerPolicy{
		{
			PayerCode:         "BCBS-TX",
			ProcedureCategory: "spine_surgery",
			PARequired:        true,
			ResponseSLA:       5 * 24 * time.Hour,
			RequiredDocuments: []string{"imaging_report", "conservative_treatment_notes", "physician_referral"},
		},
		{
			PayerCode:         "BCBS-TX",
			ProcedureCategory: "pain_management",
			PARequired:        true,
			ResponseSLA:       7 * 24 * time.Hour,
			RequiredDocuments: []string{"imaging_report", "treatment_plan"},
		},
		{
			PayerCode:         "BCBS-TX",
			ProcedureCategory: "physical_therapy",
			PARequired:        false,
			ResponseSLA:       14 * 24 * time.Hour,
		},
		{
			PayerCode:         "UHC",
			ProcedureCategory: "spine_surgery",
			PARequired:        true,
			ResponseSLA:       3 * 24 * time.Hour,
			RequiredDocuments: []string{"imaging_report", "conservative_treatment_notes", "peer_review_summary"},
		},
		{
			PayerCode:         "UHC",
			ProcedureCategory: "pain_management",
			PARequired:        true,
			ResponseSLA:       5 * 24 * time.Hour,
			RequiredDocuments: []string{"imaging_report", "treatment_plan"},
		},
		{
			PayerCode:         "AETNA",
			ProcedureCategory: "spine_surgery",
			PARequired:        true,
			ResponseSLA:       7 * 24 * time.Hour,
			RequiredDocuments: []string{"imaging_report", "conservative_treatment_notes"},
		},
		{
			PayerCode:         "AETNA",
			ProcedureCategory: "physical_therapy",
			PARequired:        false,
			ResponseSLA:       10 * 24 * time.Hour,
		},
		{
			PayerCode:         "MEDICARE",
			ProcedureCategory: "spine_surgery",
			PARequired:        false,
			ResponseSLA:       30 * 24 * time.Hour,
			RequiredDocuments: []string{"imaging_report"},
		},
	}

	for _, p := range policies {
		if err := s.UpsertPolicy(p); err != nil {
			return err
		}
	}

	fees := []FeeScheduleEntry{
		{PayerCode: "BCBS-TX", ProcedureCode: "22633", AllowedAmount: 2845000, EffectiveFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{PayerCode: "BCBS-TX", ProcedureCode: "63047", AllowedAmount: 1120000, EffectiveFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{PayerCode: "BCBS-TX", ProcedureCode: "64483", AllowedAmount: 98500, EffectiveFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{PayerCode: "UHC", ProcedureCode: "22633", AllowedAmount: 2610000, EffectiveFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{PayerCode: "UHC", ProcedureCode: "63047", AllowedAmount: 1045000, EffectiveFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{PayerCode: "AETNA", ProcedureCode: "22633", AllowedAmount: 2702500, EffectiveFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{PayerCode: "MEDICARE", ProcedureCode: "22633", AllowedAmount: 1985300, EffectiveFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{PayerCode: "MEDICARE", ProcedureCode: "63047", AllowedAmount: 887200, EffectiveFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, e := range fees {
		if err := s.UpsertFeeSchedule(e); err != nil {
			return err
		}
	}

	return nil
}
