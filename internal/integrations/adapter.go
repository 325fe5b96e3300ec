// Package integrations defines how order batches enter the scheduler from
// outside systems.
package integrations

import (
	"context"

	"apsplan/internal/opt"
)

// OrderSource yields one batch of orders to schedule.
type OrderSource interface {
	Name() string
	FetchOrders(ctx context.Context) (OrderBatch, error)
}

// OrderBatch is what a source produced. Rejected rows are reported, not
// silently dropped.
type OrderBatch struct {
	Source   string
	Orders   []opt.OrderInput
	Rejected []RowError
}

// RowError describes one input row the source could not use.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}
