// Package cache keeps optimal schedule results keyed by the normalized batch
// that produced them. Only optimal results are worth caching: a feasible
// result could improve with a larger budget.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"apsplan/internal/catalog"
	"apsplan/internal/model"
	"apsplan/internal/opt"
)

var ErrMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string) (model.ScheduleResult, error)
	Put(ctx context.Context, key string, res model.ScheduleResult) error
}

type keyInput struct {
	Tenant   string
	Catalog  string
	Orders   []opt.Order
	Defaults opt.Defaults
	Policy   opt.UnknownLinePolicy
}

// Key hashes everything that decides an optimal makespan: the tenant, the
// catalog content, the orders after defaults are applied and the
// unknown-line policy. Budget and worker count do not change an optimum, so
// they stay out of the key.
func Key(tenant string, cat *catalog.Catalog, orders []opt.OrderInput, cfg opt.Config) (string, error) {
	b, err := json.Marshal(keyInput{
		Tenant:   tenant,
		Catalog:  cat.Fingerprint(),
		Orders:   opt.NormalizeOrders(orders, cfg.Defaults),
		Defaults: cfg.Defaults,
		Policy:   cfg.UnknownLines,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return "aps:sched:" + hex.EncodeToString(sum[:]), nil
}

// Cacheable reports whether res may be stored.
func Cacheable(res model.ScheduleResult) bool {
	return res.Status == opt.StatusOptimal && res.Error == ""
}
