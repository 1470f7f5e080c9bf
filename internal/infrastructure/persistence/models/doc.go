// Package models contains the GORM persistence models of the six core tables.
// Models are separate from domain aggregates: repositories convert with
// FromDomain / ToDomain so that storage concerns (JSON columns, batch claim
// columns) never leak into the domain layer.
package models
