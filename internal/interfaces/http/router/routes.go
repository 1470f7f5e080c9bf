package router

import (
	"github.com/erp/platform/internal/interfaces/http/handler"
	"github.com/erp/platform/internal/interfaces/http/middleware"
)

// Handlers bundles the resource handlers mounted under the API prefix
type Handlers struct {
	Organizations *handler.OrganizationHandler
	Entities      *handler.EntityHandler
	Transactions  *handler.TransactionHandler
	Rules         *handler.RuleHandler
	SmartCodes    *handler.SmartCodeHandler
	Reports       *handler.ReportHandler
	System        *handler.SystemHandler
}

// CoreGroups builds the route groups of the platform API.
// Organization-scoped resources reject requests that resolved no organization.
func CoreGroups(h Handlers) []RouteRegistrar {
	orgs := NewDomainGroup("organizations", "/organizations").
		POST("", h.Organizations.Provision).
		GET("", h.Organizations.List).
		GET("/:id", h.Organizations.Get).
		PUT("/:id/settings", h.Organizations.UpdateSettings).
		PUT("/:id/status", h.Organizations.ChangeStatus)

	entities := NewDomainGroup("entities", "/entities").
		Use(middleware.RequireOrganization()).
		POST("", h.Entities.Create).
		GET("", h.Entities.List).
		GET("/:id", h.Entities.Get).
		PATCH("/:id", h.Entities.Update).
		PUT("/:id/attributes", h.Entities.SetAttribute).
		GET("/:id/attributes", h.Entities.ListAttributes).
		GET("/:id/relationships", h.Entities.ListRelationships)

	relationships := NewDomainGroup("relationships", "/relationships").
		Use(middleware.RequireOrganization()).
		POST("", h.Entities.CreateRelationship).
		DELETE("/:id", h.Entities.DeactivateRelationship)

	transactions := NewDomainGroup("transactions", "/transactions").
		Use(middleware.RequireOrganization()).
		POST("", h.Transactions.Create).
		GET("", h.Transactions.List).
		GET("/:id", h.Transactions.Get).
		PUT("/:id/lines", h.Transactions.AdjustLines).
		POST("/:id/post", h.Transactions.Post).
		POST("/:id/cancel", h.Transactions.Cancel).
		POST("/:id/approve", h.Transactions.Approve).
		POST("/:id/reverse", h.Transactions.Reverse)

	rules := NewDomainGroup("rules", "/rules").
		Use(middleware.RequireOrganization()).
		POST("", h.Rules.Create).
		GET("", h.Rules.List).
		GET("/active-count", h.Rules.ActiveCount).
		POST("/evaluate", h.Rules.Evaluate).
		PUT("/:id/active", h.Rules.SetActive)

	smartCodes := NewDomainGroup("smart-codes", "/smart-codes").
		GET("/validate", h.SmartCodes.Validate).
		GET("/classify", h.SmartCodes.Classify).
		GET("/templates", h.SmartCodes.ListTemplates).
		POST("/templates", h.SmartCodes.RegisterTemplate)

	reports := NewDomainGroup("reports", "/reports").
		Use(middleware.RequireOrganization()).
		GET("/trial-balance", h.Reports.TrialBalance).
		GET("/profit-and-loss", h.Reports.ProfitAndLoss).
		GET("/balance-sheet", h.Reports.BalanceSheet)

	system := NewDomainGroup("system", "/system")
	system.Group("batch", "/batch").
		POST("/run", h.System.RunBatch).
		GET("/status", h.System.BatchStatus)

	return []RouteRegistrar{orgs, entities, relationships, transactions, rules, smartCodes, reports, system}
}
