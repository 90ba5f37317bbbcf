package seeders

import (
	"errors"
	"log"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"decision-service/internal/models"
)

// SeedSystemFlows creates system-level approval flows. These flows use
// tenant_id 'system' and serve as fallbacks for tenants that have not
// defined their own flow for a request type.
func SeedSystemFlows(db *gorm.DB) error {
	timeout48 := 48
	timeout72 := 72

	flows := []models.ApprovalFlow{
		{
			TenantID:    "system",
			Name:        "estimate_approval",
			DisplayName: "Estimate Approval",
			Description: "Default approval chain for construction estimates",
			FlowType:    "estimate",
			IsSystem:    true,
			IsActive:    true,
			Steps: []models.ApprovalStep{
				{
					StepOrder:    1,
					Name:         "Manager review",
					ApproverType: models.ApproverSystemLevel,
					SystemLevel:  "manager",
					IsRequired:   true,
					CanDelegate:  true,
					TimeoutHours: &timeout48,
					IsActive:     true,
				},
				{
					StepOrder:         2,
					Name:              "Executive sign-off",
					ApproverType:      models.ApproverSystemLevel,
					SystemLevel:       "executive",
					ApproverCondition: datatypes.JSON(`{"field": "data.amount", "operator": "gte", "value": 10000000}`),
					IsRequired:        false,
					CanDelegate:       false,
					TimeoutHours:      &timeout72,
					IsActive:          true,
				},
			},
		},
		{
			TenantID:    "system",
			Name:        "purchase_order_approval",
			DisplayName: "Purchase Order Approval",
			Description: "Default approval chain for purchase orders",
			FlowType:    "purchase_order",
			IsSystem:    true,
			IsActive:    true,
			Steps: []models.ApprovalStep{
				{
					StepOrder:    1,
					Name:         "Manager review",
					ApproverType: models.ApproverSystemLevel,
					SystemLevel:  "manager",
					IsRequired:   true,
					CanDelegate:  true,
					TimeoutHours: &timeout48,
					IsActive:     true,
				},
			},
		},
	}

	for _, flow := range flows {
		var existing models.ApprovalFlow
		err := db.Where("tenant_id = ? AND name = ?", flow.TenantID, flow.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := db.Create(&flow).Error; err != nil {
			log.Printf("Failed to seed flow %s: %v", flow.Name, err)
			return err
		}
		log.Printf("Seeded flow: %s (tenant: %s)", flow.Name, flow.TenantID)
	}

	return nil
}

// SeedSystemPolicies creates system-level policies. Policies are opt-in
// restrictions: with none matching, the decision point returns indeterminate
// and the approval pipeline proceeds on its own defaults.
func SeedSystemPolicies(db *gorm.DB) error {
	policies := []models.Policy{
		{
			TenantID:     "system",
			Name:         "deny_large_estimates_below_executive",
			BusinessCode: "estimate",
			Action:       "submit",
			Effect:       models.EffectDeny,
			Priority:     100,
			IsActive:     true,
			Conditions: datatypes.JSON(`{"operator": "and", "rules": [
				{"field": "data.amount", "operator": "gt", "value": 100000000},
				{"field": "user.system_level", "operator": "neq", "value": "executive"}
			]}`),
		},
	}

	for _, policy := range policies {
		var existing models.Policy
		err := db.Where("tenant_id = ? AND name = ?", policy.TenantID, policy.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := db.Create(&policy).Error; err != nil {
			log.Printf("Failed to seed policy %s: %v", policy.Name, err)
			return err
		}
		log.Printf("Seeded policy: %s (tenant: %s)", policy.Name, policy.TenantID)
	}

	return nil
}
